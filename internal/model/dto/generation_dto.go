package dto

// CreateGenerationRequest 创建生成请求
type CreateGenerationRequest struct {
	ModelName   string `json:"model_name" binding:"required"`
	Prompt      string `json:"prompt" binding:"required"`
	AspectRatio string `json:"aspect_ratio"`
	InputURL    string `json:"input_url"`
}

// CreateGenerationResponse 创建生成响应
// 同步类型（图片/语音）直接带回 output_url，视频返回排队中的记录
type CreateGenerationResponse struct {
	GenerationID   int64  `json:"generation_id"`
	Status         string `json:"status"`
	OutputURL      string `json:"output_url,omitempty"`
	CreditsCharged int64  `json:"credits_charged"`
}

// GenerationDetail 生成详情
type GenerationDetail struct {
	ID              int64  `json:"id"`
	Kind            string `json:"kind"`
	ModelName       string `json:"model_name"`
	Prompt          string `json:"prompt"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	InputURL        string `json:"input_url,omitempty"`
	CreditsReserved int64  `json:"credits_reserved"`
	Status          string `json:"status"`
	OutputURL       string `json:"output_url,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	CreatedAt       string `json:"created_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
}

// GenerationListItem 生成列表项
type GenerationListItem struct {
	ID        int64  `json:"id"`
	Kind      string `json:"kind"`
	ModelName string `json:"model_name"`
	Status    string `json:"status"`
	OutputURL string `json:"output_url,omitempty"`
	CreatedAt string `json:"created_at"`
}
