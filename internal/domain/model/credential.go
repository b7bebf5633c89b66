package model

import (
	"fmt"
	"strings"
	"time"

	"genhub/internal/domain"
)

type ProviderID string

const (
	ProviderOllama  ProviderID = "ollama"
	ProviderOpenAI  ProviderID = "openai"
	ProviderGemini  ProviderID = "gemini"
	ProviderClaude  ProviderID = "claude"
	ProviderComfyUI ProviderID = "comfyui"
)

func ParseProviderID(s string) (ProviderID, error) {
	p := ProviderID(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProviderOllama, ProviderOpenAI, ProviderGemini, ProviderClaude, ProviderComfyUI:
		return p, nil
	}
	return "", domain.Invalid("provider", fmt.Sprintf("unknown provider %q", s))
}

type ConnectionStatus string

const (
	ConnectionUnknown   ConnectionStatus = "unknown"
	ConnectionConnected ConnectionStatus = "connected"
	ConnectionError     ConnectionStatus = "error"
)

// ProviderCredential is the stored form of a provider secret. EncryptedSecret
// is the vault blob and is never serialized.
type ProviderCredential struct {
	Provider        ProviderID       `json:"provider"`
	EncryptedSecret string           `json:"-"`
	Endpoint        string           `json:"endpoint,omitempty"`
	LastTestedAt    *time.Time       `json:"last_tested_at,omitempty"`
	Status          ConnectionStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// CredentialView is the display-safe projection of a credential.
type CredentialView struct {
	Provider     ProviderID       `json:"provider"`
	MaskedSecret string           `json:"masked_secret"`
	Endpoint     string           `json:"endpoint,omitempty"`
	LastTestedAt *time.Time       `json:"last_tested_at,omitempty"`
	Status       ConnectionStatus `json:"status"`
}
