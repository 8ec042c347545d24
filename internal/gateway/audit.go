package gateway

import (
	"context"
	"log"

	"ragdocs/internal/models"
	"ragdocs/internal/providers"
)

// Auditor persists provider attempts. A failed insert is logged and never
// fails the call being audited.
type Auditor interface {
	Insert(ctx context.Context, call models.ModelCall) error
}

func auditCall(ctx context.Context, a Auditor, op string, ref providers.ProviderRef, info providers.ProviderInfo, inputs int, err error) {
	if a == nil {
		return
	}
	call := models.ModelCall{
		Operation: op,
		Provider:  ref.Raw,
		Model:     info.Model,
		Status:    "ok",
		Inputs:    inputs,
	}
	if err != nil {
		call.Status = "error"
		call.ErrorType = string(providers.ClassifyError(err))
	}
	if ierr := a.Insert(context.WithoutCancel(ctx), call); ierr != nil {
		log.Printf("gateway: audit insert failed op=%s provider=%s err=%v", op, ref.Raw, ierr)
	}
}
