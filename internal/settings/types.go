package settings

const (
	DefaultModel       = "llama2"
	DefaultTemperature = 0.7
)

// Settings is the per-user model preference record.
type Settings struct {
	DefaultModel   string   `json:"default_model"`
	Temperature    float64  `json:"temperature"`
	FavoriteModels []string `json:"favorite_models"`
}

// UpsertRequest carries a partial settings update; nil fields keep the
// current value.
type UpsertRequest struct {
	DefaultModel   *string  `json:"default_model,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	FavoriteModels []string `json:"favorite_models,omitempty"`
}
