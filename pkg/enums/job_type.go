package enums

// JobType selects the pipeline the external worker runs for a job.
type JobType string

const (
	JobTypePDFProcessing      JobType = "pdf_processing"
	JobTypeVideoTranscription JobType = "video_transcription"
	JobTypeImageAnalysis      JobType = "image_analysis"
	JobTypeInteractiveParsing JobType = "interactive_parsing"
)

var jobTypes = []JobType{JobTypePDFProcessing, JobTypeVideoTranscription, JobTypeImageAnalysis, JobTypeInteractiveParsing}

func (j JobType) String() string { return string(j) }
func (j JobType) IsValid() bool  { return oneOf(j, jobTypes) }

func ParseJobType(value string) (JobType, error) {
	return parse(value, jobTypes, "job type")
}
