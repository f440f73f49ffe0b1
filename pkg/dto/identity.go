package dto

type RenameIdentityRequest struct {
	NewName string `json:"new_name" binding:"required"`
}

type UpdateContactRequest struct {
	Contact string `json:"contact"`
}

type IdentityResponse struct {
	Identity     string `json:"identity"`
	Contact      string `json:"contact,omitempty"`
	Encrypted    bool   `json:"encrypted"`
	EmbeddingDim int    `json:"embedding_dim,omitempty"`
}

type IdentityListResponse struct {
	Identities []string `json:"identities"`
	Total      int      `json:"total"`
}
