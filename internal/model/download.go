package model

// DownloadStatus is the terminal state of one asset fetch attempt.
type DownloadStatus string

const (
	// DownloadSkipped means the destination already held a non-empty file.
	DownloadSkipped   DownloadStatus = "skipped_existing"
	DownloadSucceeded DownloadStatus = "succeeded"
	DownloadFailed    DownloadStatus = "failed"
)

// DownloadRecord describes one (candidate, asset-kind) fetch outcome. Ephemeral:
// aggregated into the run report, never persisted. The file on disk is the
// durable signal.
type DownloadRecord struct {
	Status    DownloadStatus `json:"status"`
	ProductID string         `json:"product_id"`
	Kind      AssetKind      `json:"kind"`
	Dest      string         `json:"dest"`
	Error     string         `json:"error,omitempty"`
}
