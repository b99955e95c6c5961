package types

import (
	"sort"
	"time"
)

// Model is a model record as returned by GET /api/v1/models/{id}.
type Model struct {
	// Numeric model identifier.
	ID int64 `json:"id"`
	// Display name.
	Name string `json:"name"`
	// Declared top-level type (Checkpoint, LORA, VAE, ...).
	Type string `json:"type"`
	// HTML description provided by the author.
	Description string `json:"description,omitempty"`
	// Versions in API response order until SortVersions is applied.
	ModelVersions []Version `json:"modelVersions"`
}

// Version is a single published version of a model.
type Version struct {
	ID int64 `json:"id"`
	// Owning model id; only populated by the model-versions endpoint.
	ModelID       int64     `json:"modelId,omitempty"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	TrainedWords  []string  `json:"trainedWords,omitempty"`
	DownloadCount int64     `json:"downloadCount,omitempty"`
	BaseModel     string    `json:"baseModel,omitempty"`
	BaseModelType string    `json:"baseModelType,omitempty"`
	DownloadURL   string    `json:"downloadUrl,omitempty"`
	Files         []File    `json:"files"`
	// Stats carries download counts on responses that do not expose the
	// top-level downloadCount field.
	Stats *VersionStats `json:"stats,omitempty"`
	// Model is the parent summary attached by the model-versions endpoint.
	Model *VersionModel `json:"model,omitempty"`
}

// VersionStats is the stats block attached to a version.
type VersionStats struct {
	DownloadCount int64 `json:"downloadCount"`
}

// VersionModel is the parent model summary embedded in a version response.
type VersionModel struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Downloads returns the best known download count for the version.
func (v Version) Downloads() int64 {
	if v.DownloadCount == 0 && v.Stats != nil {
		return v.Stats.DownloadCount
	}
	return v.DownloadCount
}

// IsBaseModel reports whether the version declares a base-model type.
func (v Version) IsBaseModel() bool { return v.BaseModelType != "" }

// SizeKB sums the sizes of all files in the version.
func (v Version) SizeKB() float64 {
	var total float64
	for _, f := range v.Files {
		total += f.SizeKB
	}
	return total
}

// File is a downloadable artifact attached to a version.
type File struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	SizeKB      float64           `json:"sizeKB"`
	Type        string            `json:"type"`
	Metadata    FileMetadata      `json:"metadata"`
	DownloadURL string            `json:"downloadUrl,omitempty"`
	Hashes      map[string]string `json:"hashes,omitempty"`
	Primary     bool              `json:"primary,omitempty"`
}

// FileMetadata holds the format descriptors CivitAI attaches to a file.
type FileMetadata struct {
	Format string `json:"format,omitempty"`
	Size   string `json:"size,omitempty"`
	FP     string `json:"fp,omitempty"`
}

// SizeBytes converts the declared kilobyte size into bytes. Zero means unknown.
func (f File) SizeBytes() int64 {
	if f.SizeKB <= 0 {
		return 0
	}
	return int64(f.SizeKB * 1024)
}

// SearchResponse wraps GET /api/v1/models?query=... results.
type SearchResponse struct {
	Items    []Model        `json:"items"`
	Metadata SearchMetadata `json:"metadata"`
}

// SearchMetadata carries pagination details of a search response.
type SearchMetadata struct {
	TotalItems  int    `json:"totalItems,omitempty"`
	CurrentPage int    `json:"currentPage,omitempty"`
	PageSize    int    `json:"pageSize,omitempty"`
	NextPage    string `json:"nextPage,omitempty"`
}

// SortVersions orders versions newest first by creation time. Versions with
// equal timestamps keep their API order.
func (m *Model) SortVersions() {
	sort.SliceStable(m.ModelVersions, func(i, j int) bool {
		return m.ModelVersions[i].CreatedAt.After(m.ModelVersions[j].CreatedAt)
	})
}
