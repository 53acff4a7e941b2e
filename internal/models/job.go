package models

import "time"

// Job status values exposed to pollers. They follow the serverless queue
// lifecycle: a submitted job sits IN_QUEUE until a worker picks it up.
const (
	StatusInQueue    = "IN_QUEUE"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Request type discriminators carried in JobInput.Type.
const (
	TypeHealth       = "health"
	TypeProcessSingle = "process_single"
	TypeProcessBatch = "process_batch"
	TypeProcessPDF   = "process_pdf"
)

// JobRequest is the outer request envelope: {"input": {...}}.
type JobRequest struct {
	Input JobInput `json:"input"`
}

// JobInput is the discriminated job payload.
type JobInput struct {
	Type string `json:"type"`

	// process_single
	Image     string `json:"image,omitempty"`
	PageIndex int    `json:"page_index,omitempty"`

	// process_batch
	Images []string `json:"images,omitempty"`
	Title  string   `json:"title,omitempty"`

	// process_pdf
	PDF string `json:"pdf,omitempty"`
}

// JobResponse is the outer response envelope returned by /run, /runsync and
// job polling.
type JobResponse struct {
	ID            string      `json:"id"`
	Status        string      `json:"status"`
	Output        interface{} `json:"output,omitempty"`
	Error         string      `json:"error,omitempty"`
	Traceback     string      `json:"traceback,omitempty"`
	Code          int         `json:"code,omitempty"`
	ExecutionTime float64     `json:"executionTime,omitempty"` // seconds
}

// TextBlock is the atomic OCR result unit, relayed verbatim from the wrapped
// engine's aggregate output. Box is [x1, y1, x2, y2]; LinesCoords holds one
// four-corner polygon per line.
type TextBlock struct {
	Box         []float64      `json:"box"`
	Vertical    bool           `json:"vertical"`
	FontSize    float64        `json:"font_size"`
	LinesCoords [][][2]float64 `json:"lines_coords,omitempty"`
	Lines       []string       `json:"lines"`
}

// PageResult pairs a request-order page index with its text blocks. Success
// is only set on single-page results.
type PageResult struct {
	PageIndex  int         `json:"page_index"`
	TextBlocks []TextBlock `json:"text_blocks"`
	Success    bool        `json:"success,omitempty"`
}

// SingleOutput is the output payload for process_single.
type SingleOutput struct {
	Status string      `json:"status"`
	Result *PageResult `json:"result"`
}

// BatchOutput is the output payload for process_batch and process_pdf.
// MissingPages lists request indexes the engine produced no entry for; those
// indexes still appear in Pages with an empty block list.
type BatchOutput struct {
	Status       string       `json:"status"`
	Title        string       `json:"title"`
	Pages        []PageResult `json:"pages"`
	BlankPages   []int        `json:"blank_pages,omitempty"`
	MissingPages []int        `json:"missing_pages,omitempty"`
}

// HealthOutput is the output payload for a health job.
type HealthOutput struct {
	Status       string `json:"status"`
	Device       string `json:"device"`
	GPUAvailable bool   `json:"gpu_available"`
	Engine       string `json:"engine"`
}

// JobStatus is the full poll view of a job.
type JobStatus struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Status      string      `json:"status"`
	Progress    int         `json:"progress"`
	Stage       string      `json:"stage,omitempty"`
	CurrentPage int         `json:"current_page"`
	TotalPages  int         `json:"total_pages"`
	Title       string      `json:"title,omitempty"`
	Output      interface{} `json:"output,omitempty"`
	Error       string      `json:"error,omitempty"`
	Traceback   string      `json:"traceback,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	ElapsedTime float64     `json:"elapsed_time,omitempty"`
	ArtifactURL string      `json:"artifact_url,omitempty"`
}
