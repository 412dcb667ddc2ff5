package session

import (
	"fmt"
	"time"

	"github.com/arzzra/call_session/pkg/call"
)

// ErrorCategory категории ошибок сессии для классификации
type ErrorCategory string

const (
	// Ошибки транспортного слоя (размещение вызова, поток обновлений)
	ErrorCategoryTransport ErrorCategory = "TRANSPORT"

	// Ошибки состояния сессии и конференции
	ErrorCategoryState   ErrorCategory = "STATE"
	ErrorCategorySession ErrorCategory = "SESSION"

	// Ошибки разрешений устройств (камера, микрофон)
	ErrorCategoryPermission ErrorCategory = "PERMISSION"

	// Ошибки валидации входных данных
	ErrorCategoryValidation ErrorCategory = "VALIDATION"
)

// ErrorSeverity уровни критичности ошибок
type ErrorSeverity string

const (
	ErrorSeverityCritical ErrorSeverity = "CRITICAL" // Сессия не может продолжаться
	ErrorSeverityError    ErrorSeverity = "ERROR"    // Операция не может быть завершена
	ErrorSeverityWarning  ErrorSeverity = "WARNING"  // Операция может быть продолжена
)

// SessionError структурированная ошибка сессии с контекстом.
//
// Политика распространения: все ошибки транспортного слоя перехватываются
// на границе подписки и конвертируются в локальный терминальный переход.
// Наружу, в путь доставки событий, они не выбрасываются.
type SessionError struct {
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`

	ConferenceID string    `json:"conference_id,omitempty"`
	CallID       string    `json:"call_id,omitempty"`
	State        string    `json:"state,omitempty"`
	Timestamp    time.Time `json:"timestamp"`

	Fields      map[string]interface{} `json:"fields,omitempty"`
	Cause       error                  `json:"cause,omitempty"`
	Recoverable bool                   `json:"recoverable"`
}

// Error реализует интерфейс error
func (e *SessionError) Error() string {
	if e.ConferenceID != "" {
		return fmt.Sprintf("[%s:%s] %s (conf: %s)", e.Category, e.Code, e.Message, e.ConferenceID)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap позволяет использовать errors.Is и errors.As
func (e *SessionError) Unwrap() error {
	return e.Cause
}

// WithField добавляет дополнительное поле контекста
func (e *SessionError) WithField(key string, value interface{}) *SessionError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// WithCause добавляет исходную ошибку
func (e *SessionError) WithCause(cause error) *SessionError {
	e.Cause = cause
	return e
}

// WithConference добавляет контекст конференции
func (e *SessionError) WithConference(confID string, state call.Status) *SessionError {
	e.ConferenceID = confID
	e.State = state.String()
	return e
}

// NewSessionError создает новую структурированную ошибку
func NewSessionError(code, message string, category ErrorCategory, severity ErrorSeverity) *SessionError {
	return &SessionError{
		Code:      code,
		Message:   message,
		Category:  category,
		Severity:  severity,
		Timestamp: time.Now(),
	}
}

// Предопределенные ошибки для частых случаев

// ErrCallSetupFailed — транспорт отклонил размещение или принятие вызова.
// Терминальная: сессия сносится, повторов нет.
func ErrCallSetupFailed(accountID string, contactURI call.URI, cause error) *SessionError {
	return NewSessionError(
		"CALL_SETUP_FAILED",
		fmt.Sprintf("Не удалось разместить вызов к %s", contactURI),
		ErrorCategoryTransport,
		ErrorSeverityCritical,
	).WithField("account_id", accountID).WithField("contact_uri", string(contactURI)).WithCause(cause)
}

// ErrConferenceStreamFailed — ошибка потока обновлений конференции.
// Обрабатывается идентично ошибке установления: локальный hangup.
func ErrConferenceStreamFailed(confID string, cause error) *SessionError {
	err := NewSessionError(
		"CONFERENCE_STREAM_FAILED",
		"Ошибка потока обновлений конференции",
		ErrorCategoryTransport,
		ErrorSeverityCritical,
	).WithCause(cause)
	err.ConferenceID = confID
	return err
}

// ErrNoActiveConference — операция требует живую конференцию.
func ErrNoActiveConference(operation string) *SessionError {
	return NewSessionError(
		"NO_ACTIVE_CONFERENCE",
		fmt.Sprintf("Нельзя выполнить операцию '%s' без активной конференции", operation),
		ErrorCategoryState,
		ErrorSeverityWarning,
	).WithField("operation", operation)
}

// ErrInvalidCallTarget — пустой аккаунт или контакт при размещении вызова.
func ErrInvalidCallTarget(accountID string, contactURI call.URI) *SessionError {
	return NewSessionError(
		"INVALID_CALL_TARGET",
		"Пустой аккаунт или контакт при размещении вызова",
		ErrorCategoryValidation,
		ErrorSeverityError,
	).WithField("account_id", accountID).WithField("contact_uri", string(contactURI))
}

// ErrConversationFailed — не удалось разрешить разговор для добавления
// участника. Основную сессию не затрагивает.
func ErrConversationFailed(accountID string, uri call.URI, cause error) *SessionError {
	return NewSessionError(
		"CONVERSATION_FAILED",
		fmt.Sprintf("Не удалось разрешить разговор для %s", uri),
		ErrorCategorySession,
		ErrorSeverityError,
	).WithField("account_id", accountID).WithField("uri", string(uri)).WithCause(cause)
}

// ErrPendingPlacementFailed — плечо добавляемого участника так и не
// установилось. Pending-запись снимается, сессия живет дальше.
func ErrPendingPlacementFailed(contactURI call.URI, cause error) *SessionError {
	return NewSessionError(
		"PENDING_PLACEMENT_FAILED",
		fmt.Sprintf("Добавляемый участник %s не дозвонился", contactURI),
		ErrorCategoryTransport,
		ErrorSeverityWarning,
	).WithField("contact_uri", string(contactURI)).WithCause(cause)
}

// IsRecoverable проверяет, можно ли продолжать сессию после ошибки
func IsRecoverable(err error) bool {
	if se, ok := err.(*SessionError); ok {
		return se.Recoverable || se.Severity == ErrorSeverityWarning
	}
	return false
}

// GetErrorCode извлекает код ошибки
func GetErrorCode(err error) string {
	if se, ok := err.(*SessionError); ok {
		return se.Code
	}
	return "UNKNOWN_ERROR"
}
