package garmin

// UploadResult is the detailedImportResult returned by the upload service.
// Garmin accepts the file before parsing it, so Successes may be empty
// while processing continues server side.
type UploadResult struct {
	UploadID       int64           `json:"uploadId"`
	UploadUUID     *UploadUUID     `json:"uploadUuid,omitempty"`
	Owner          int64           `json:"owner"`
	FileSize       int64           `json:"fileSize"`
	ProcessingTime int64           `json:"processingTime"`
	CreationDate   string          `json:"creationDate"`
	IPAddress      string          `json:"ipAddress,omitempty"`
	FileName       string          `json:"fileName"`
	Report         any             `json:"report,omitempty"`
	Successes      []ImportOutcome `json:"successes"`
	Failures       []ImportOutcome `json:"failures"`
}

// UploadUUID wraps the upload's UUID the way the service nests it.
type UploadUUID struct {
	UUID string `json:"uuid"`
}

// ImportOutcome describes one activity created (or rejected) from the file.
type ImportOutcome struct {
	InternalID int64           `json:"internalId"`
	ExternalID string          `json:"externalId,omitempty"`
	Messages   []ImportMessage `json:"messages"`
}

// ImportMessage is a service-side note attached to an outcome, such as
// "Duplicate Activity."
type ImportMessage struct {
	Code    int    `json:"code"`
	Content string `json:"content"`
}

// uploadResponse is the envelope around UploadResult.
type uploadResponse struct {
	DetailedImportResult UploadResult `json:"detailedImportResult"`
}
