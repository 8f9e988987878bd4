package enums

// FileType is the coarse family of an uploaded course material.
type FileType string

const (
	FileTypePDF   FileType = "pdf"
	FileTypeText  FileType = "text"
	FileTypeVideo FileType = "video"
	FileTypeAudio FileType = "audio"
	FileTypeImage FileType = "image"
)

var fileTypes = []FileType{FileTypePDF, FileTypeText, FileTypeVideo, FileTypeAudio, FileTypeImage}

func (f FileType) String() string { return string(f) }
func (f FileType) IsValid() bool  { return oneOf(f, fileTypes) }

// JobType returns the processing pipeline used for this file family. Text
// goes through the document pipeline alongside PDFs.
func (f FileType) JobType() JobType {
	switch f {
	case FileTypeVideo, FileTypeAudio:
		return JobTypeVideoTranscription
	case FileTypeImage:
		return JobTypeImageAnalysis
	default:
		return JobTypePDFProcessing
	}
}

func ParseFileType(value string) (FileType, error) {
	return parse(value, fileTypes, "file type")
}
