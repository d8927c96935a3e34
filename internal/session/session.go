// Package session holds the state of one connected wallet: the account, the
// display language and the transfer form inputs.
package session

import (
	"regexp"
	"strings"
	"sync"
)

// Same shape the amount field accepts while typing.
var amountInput = regexp.MustCompile(`^\d*\.?\d*$`)

// AccountListener is called with the new account, or "" on disconnect.
type AccountListener func(account string)

type Session struct {
	mu        sync.RWMutex
	account   string
	language  string
	amount    string
	recipient string
	asset     string
	nextID    int
	listeners map[int]AccountListener
}

func New(language string) *Session {
	return &Session{language: language, listeners: make(map[int]AccountListener)}
}

func (s *Session) Account() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

func (s *Session) Connected() bool {
	return s.Account() != ""
}

// SetAccount switches the connected account and notifies listeners when it
// changed. Listeners run outside the lock in subscription order.
func (s *Session) SetAccount(account string) {
	account = strings.TrimSpace(account)

	s.mu.Lock()
	if s.account == account {
		s.mu.Unlock()
		return
	}
	s.account = account
	listeners := s.snapshot()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(account)
	}
}

// Disconnect clears the account and the form.
func (s *Session) Disconnect() {
	s.ClearForm()
	s.SetAccount("")
}

// OnAccountChange subscribes fn and returns a function that unsubscribes it.
func (s *Session) OnAccountChange(fn AccountListener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Session) snapshot() []AccountListener {
	out := make([]AccountListener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.listeners[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func (s *Session) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

func (s *Session) SetLanguage(language string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = language
}

// SetAmount accepts partial decimal input ("", "1.", ".5") and rejects
// anything else, leaving the previous value in place.
func (s *Session) SetAmount(amount string) bool {
	if amount != "" && !amountInput.MatchString(amount) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.amount = amount
	return true
}

func (s *Session) SetRecipient(recipient string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipient = recipient
}

func (s *Session) SetAsset(asset string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asset = asset
}

// Form returns the current transfer inputs.
func (s *Session) Form() (asset, amount, recipient string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.asset, s.amount, s.recipient
}

// ClearForm empties amount and recipient. The selected asset is kept.
func (s *Session) ClearForm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.amount = ""
	s.recipient = ""
}
