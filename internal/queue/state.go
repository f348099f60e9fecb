package queue

import "time"

type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseReady      Phase = "ready"
	PhaseSubmitting Phase = "submitting"
	PhaseError      Phase = "error"
)

type Modal string

const (
	ModalNone     Modal = ""
	ModalJoin     Modal = "join"
	ModalCheckout Modal = "checkout"
	ModalCash     Modal = "cash"
	ModalDigital  Modal = "digital"
	ModalSkip     Modal = "skip"
)

type Toaster struct {
	Visible   bool      `json:"visible"`
	Message   string    `json:"message,omitempty"`
	Success   bool      `json:"success"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// ViewState holds the page flags. Transition methods return a new value and
// never mutate the receiver.
type ViewState struct {
	Phase      Phase   `json:"phase"`
	Refreshing bool    `json:"refreshing"`
	Modal      Modal   `json:"modal"`
	Toaster    Toaster `json:"toaster"`
}

func NewViewState() ViewState {
	return ViewState{Phase: PhaseLoading}
}

func (s ViewState) BeginLoad() ViewState {
	if ValidTransition("retry_load", s.Phase) {
		s.Phase = PhaseLoading
		return s
	}
	if s.Phase != PhaseLoading {
		s.Refreshing = true
	}
	return s
}

func (s ViewState) FinishLoad(ok bool) ViewState {
	s.Refreshing = false
	switch {
	case ok && ValidTransition("finish_load", s.Phase):
		s.Phase = PhaseReady
	case !ok && ValidTransition("fail_load", s.Phase):
		s.Phase = PhaseError
	}
	return s
}

func (s ViewState) BeginSubmit() (ViewState, error) {
	if !ValidTransition("submit", s.Phase) {
		return s, ErrBusy
	}
	s.Phase = PhaseSubmitting
	return s, nil
}

func (s ViewState) FinishSubmit() ViewState {
	if ValidTransition("finish_submit", s.Phase) {
		s.Phase = PhaseReady
	}
	return s
}

func (s ViewState) OpenModal(modal Modal) ViewState {
	s.Modal = modal
	return s
}

func (s ViewState) CloseModal() ViewState {
	s.Modal = ModalNone
	return s
}

func (s ViewState) ShowToast(message string, success bool, now time.Time, ttl time.Duration) ViewState {
	s.Toaster = Toaster{Visible: true, Message: message, Success: success, ExpiresAt: now.Add(ttl)}
	return s
}

// At returns the state as seen at now; toasts dismiss themselves once expired.
func (s ViewState) At(now time.Time) ViewState {
	if s.Toaster.Visible && !now.Before(s.Toaster.ExpiresAt) {
		s.Toaster = Toaster{}
	}
	return s
}
