package autosense

const (
	StatusDone  = "done"
	StatusError = "error"
)

// OcrRequest is the message the remote backend publishes for a worker.
type OcrRequest struct {
	RequestID string        `json:"request_id"`
	ImgBytes  []byte        `json:"img_bytes"`
	Args      TesseractArgs `json:"engine_args"`
}

// OcrResult is the worker's reply.
type OcrResult struct {
	ID     string        `json:"id"`
	Lines  []RawTextLine `json:"lines"`
	Status string        `json:"status"`
	Error  string        `json:"error,omitempty"`
}
