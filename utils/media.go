package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

const (
	ModalityImage = "image"
	ModalityAudio = "audio"
	ModalityVideo = "video"
)

var extensionModality = map[string]string{
	".png":  ModalityImage,
	".jpg":  ModalityImage,
	".jpeg": ModalityImage,
	".gif":  ModalityImage,
	".bmp":  ModalityImage,
	".tif":  ModalityImage,
	".tiff": ModalityImage,
	".webp": ModalityImage,

	".wav":  ModalityAudio,
	".wave": ModalityAudio,
	".mp3":  ModalityAudio,
	".flac": ModalityAudio,
	".ogg":  ModalityAudio,
	".m4a":  ModalityAudio,
	".aac":  ModalityAudio,

	".mp4":  ModalityVideo,
	".m4v":  ModalityVideo,
	".mov":  ModalityVideo,
	".avi":  ModalityVideo,
	".mkv":  ModalityVideo,
	".webm": ModalityVideo,
}

// Extension returns the lower-cased extension of filename, including the dot.
func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// ModalityFor picks the modality from the file extension, then from the
// declared content type. It returns "" when neither identifies one.
func ModalityFor(filename, contentType string) string {
	if m, ok := extensionModality[Extension(filename)]; ok {
		return m
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch major, _, _ := strings.Cut(mediaType, "/"); major {
	case ModalityImage, ModalityAudio, ModalityVideo:
		return major
	}
	return ""
}

// CleanFilename strips any client-supplied directory components.
func CleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
