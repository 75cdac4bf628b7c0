package app

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"astrixo/admin/internal/auth"
	"astrixo/admin/internal/authpw"
	"astrixo/admin/internal/catalog"
	"astrixo/admin/internal/community"
	"astrixo/admin/internal/rbac"
	"astrixo/admin/internal/store"
	"astrixo/admin/internal/support"
	"astrixo/admin/internal/users"
	"astrixo/admin/internal/util"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// mapError translates an error into an HTTP status and body. Validation and
// client errors carry their own text; anything unexpected gets a generic
// message and is logged here.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var validationErr *util.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Dados inválidos", validationErr.Fields
	}
	var cascadeErr *catalog.CascadeError
	if errors.As(err, &cascadeErr) {
		log.Printf("app: %v", err)
		return http.StatusBadGateway, "CASCADE_INCOMPLETE", "Erro ao excluir curso", map[string]any{
			"lessonsDeleted": cascadeErr.LessonsDeleted,
			"lessonsTotal":   cascadeErr.LessonsTotal,
		}
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrInvalidPath):
		return http.StatusBadRequest, "INVALID_PATH", "Invalid identifier", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Email ou senha incorretos", nil
	case errors.Is(err, rbac.ErrNotAdmin):
		return http.StatusForbidden, "FORBIDDEN", "Acesso negado. Apenas administradores.", nil
	case errors.Is(err, authpw.ErrInvalidResetToken):
		return http.StatusBadRequest, "RESET_FAILED", "Link de redefinição inválido ou expirado", nil
	case errors.Is(err, authpw.ErrEmailInUse):
		return http.StatusConflict, "EMAIL_IN_USE", users.Message(err), nil
	case errors.Is(err, authpw.ErrInvalidEmail),
		errors.Is(err, authpw.ErrWeakPassword),
		errors.Is(err, users.ErrPasswordMismatch):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", users.Message(err), nil
	case errors.Is(err, support.ErrEmptyResponse), errors.Is(err, community.ErrEmptyMessage):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Digite uma mensagem", nil
	case errors.Is(err, support.ErrInvalidStatus):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Status inválido", nil
	case errors.Is(err, support.ErrNoSelection):
		return http.StatusConflict, "NO_SELECTION", "Nenhum ticket selecionado", nil
	case errors.Is(err, community.ErrNotAuthor):
		return http.StatusForbidden, "NOT_AUTHOR", "Você só pode editar suas próprias mensagens", nil
	case errors.Is(err, community.ErrMessageDeleted):
		return http.StatusConflict, "MESSAGE_DELETED", "Mensagem já excluída", nil
	case errors.Is(err, community.ErrSendInFlight):
		return http.StatusConflict, "SEND_IN_FLIGHT", "Aguarde o envio da mensagem anterior", nil
	}
	log.Printf("app: %v", err)
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
