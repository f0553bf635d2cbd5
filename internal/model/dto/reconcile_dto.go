package dto

// ReconcileCount 可回收记录统计
type ReconcileCount struct {
	FailedCleanup   int64 `json:"failed_cleanup"`
	MissedRefunds   int64 `json:"missed_refunds"`
	StuckProcessing int64 `json:"stuck_processing"`
	StuckPending    int64 `json:"stuck_pending"`
}

// ReconcileResult 一次清扫的结果
type ReconcileResult struct {
	ArtifactsCleaned int `json:"artifacts_cleaned"`
	Deleted          int `json:"deleted"`
	MarkedFailed     int `json:"marked_failed"`
	Refunded         int `json:"refunded"`
}

// ModelInfo 对外公开的模型目录项
type ModelInfo struct {
	Name          string `json:"name"`
	DisplayName   string `json:"display_name"`
	Kind          string `json:"kind"`
	Credits       int64  `json:"credits"`
	SupportsInput bool   `json:"supports_input"`
	Description   string `json:"description,omitempty"`
}
