package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccountListeners(t *testing.T) {
	s := New("en")
	var first, second []string
	s.OnAccountChange(func(a string) { first = append(first, a) })
	unsubscribe := s.OnAccountChange(func(a string) { second = append(second, a) })

	s.SetAccount("0xabc")
	s.SetAccount("0xabc")
	unsubscribe()
	s.SetAccount("0xdef")
	s.Disconnect()

	assert.Equal(t, []string{"0xabc", "0xdef", ""}, first)
	assert.Equal(t, []string{"0xabc"}, second)
	assert.False(t, s.Connected())
}

func TestListenerMayReadSession(t *testing.T) {
	s := New("en")
	var seen string
	s.OnAccountChange(func(string) { seen = s.Account() })
	s.SetAccount("0xabc")
	assert.Equal(t, "0xabc", seen)
}

func TestForm(t *testing.T) {
	s := New("zh")
	s.SetAsset("maoUSDT")
	assert.True(t, s.SetAmount("1."))
	assert.True(t, s.SetAmount(".5"))
	assert.False(t, s.SetAmount("1e5"))
	assert.False(t, s.SetAmount("-1"))
	s.SetRecipient("imua1xyz")

	asset, amount, recipient := s.Form()
	assert.Equal(t, "maoUSDT", asset)
	assert.Equal(t, ".5", amount)
	assert.Equal(t, "imua1xyz", recipient)

	s.ClearForm()
	asset, amount, recipient = s.Form()
	assert.Equal(t, "maoUSDT", asset)
	assert.Empty(t, amount)
	assert.Empty(t, recipient)

	assert.Equal(t, "zh", s.Language())
	s.SetLanguage("en")
	assert.Equal(t, "en", s.Language())
}
