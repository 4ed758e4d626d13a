package provider

import (
	"fmt"
	"strings"

	"github.com/ManuelReschke/SatsFox/app/models"
	"github.com/ManuelReschke/SatsFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

// SandboxEnabled reports whether providers should run without network access.
func SandboxEnabled() bool {
	return env.IsDev() || env.IsRegtest() || env.GetBool("PROVIDER_SANDBOX", false)
}

// NewFromEnv builds the provider named by PAYMENT_PROVIDER (default lnbits).
func NewFromEnv() (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(env.GetEnv("PAYMENT_PROVIDER", models.PaymentProviderLNbits)))
	return New(name, SandboxEnabled())
}

// New builds a provider by name. In sandbox mode the returned provider keeps
// the capability set of the real one.
func New(name string, sandbox bool) (Provider, error) {
	switch name {
	case models.PaymentProviderLNbits:
		if sandbox {
			log.Infof("[Provider] Using %s sandbox", name)
			return &PayingSandbox{Sandbox: NewSandbox(name)}, nil
		}
		return NewLNbitsFromEnv(), nil
	case models.PaymentProviderOpenNode:
		if sandbox {
			log.Infof("[Provider] Using %s sandbox", name)
			return NewSandbox(name), nil
		}
		return NewOpenNodeFromEnv(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
}
