//go:build integration

package database

import (
	"context"
	"database/sql"
	"fmt"
	"monallopay/internal/models"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testStore connects to TEST_DB_URL when set, otherwise starts a throwaway
// PostgreSQL container. Migrations are applied either way.
func testStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	url := os.Getenv("TEST_DB_URL")
	if url == "" {
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("monallopay_test"),
			tcpostgres.WithUsername("test"),
			tcpostgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second),
			),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			require.NoError(t, container.Terminate(context.Background()))
		})

		url, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	db, err := sql.Open("postgres", url)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))

	s := New(db)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate("monallopay_test"))
	return s
}

// randomAddress returns a fresh lowercase hex address so tests sharing an
// external database do not see each other's rows.
func randomAddress() string {
	return "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")[:32] + "00000000"
}

func randomHash() string {
	return "0x" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

func TestSaveTransferIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := models.TransferRecord{
		Amount:    "1.500",
		Asset:     models.MaoUSDT,
		Sender:    strings.ToUpper(randomAddress()[2:]),
		Recipient: randomAddress(),
		TxHash:    randomHash(),
		Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	rec.Sender = "0x" + rec.Sender

	saved, created, err := s.SaveTransfer(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, saved.ID)
	assert.Equal(t, "1.5", saved.Amount)
	assert.Equal(t, strings.ToLower(rec.Sender), saved.Sender)

	again, created, err := s.SaveTransfer(ctx, rec)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, saved.ID, again.ID)
	assert.Equal(t, "1.5", again.Amount)
}

func TestListTransfers(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	me := randomAddress()
	other := randomAddress()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var hashes []string
	for i := 0; i < 5; i++ {
		rec := models.TransferRecord{
			Amount:    fmt.Sprintf("%d", i+1),
			Asset:     models.IMUA,
			Sender:    me,
			Recipient: other,
			TxHash:    randomHash(),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
		if i%2 == 1 {
			rec.Asset = models.MaoUSDT
			rec.Sender, rec.Recipient = other, me
		}
		_, _, err := s.SaveTransfer(ctx, rec)
		require.NoError(t, err)
		hashes = append(hashes, rec.TxHash)
	}

	page, err := s.ListTransfers(ctx, models.TransferQuery{UserAddress: me, Page: 1, Limit: 2, Currency: "All Currencies"})
	require.NoError(t, err)
	assert.Equal(t, models.Pagination{CurrentPage: 1, TotalPages: 3, TotalItems: 5}, page.Pagination)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, "5", page.Transactions[0].Amount)
	assert.Equal(t, "4", page.Transactions[1].Amount)

	page, err = s.ListTransfers(ctx, models.TransferQuery{UserAddress: strings.ToUpper(me[2:]), Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, page.Pagination.TotalItems, "address match is on the stored hex form")

	page, err = s.ListTransfers(ctx, models.TransferQuery{UserAddress: me, Page: 1, Limit: 10, Currency: "maousdt"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Pagination.TotalItems)

	page, err = s.ListTransfers(ctx, models.TransferQuery{UserAddress: me, Page: 1, Limit: 10, Currency: "所有币种", Search: hashes[2][10:30]})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, hashes[2], page.Transactions[0].TxHash)

	page, err = s.ListTransfers(ctx, models.TransferQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Transactions)
	assert.Zero(t, page.Pagination.TotalPages)
}

func TestContactsCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	owner := randomAddress()

	c, err := s.CreateContact(ctx, models.Contact{OwnerID: owner, Name: " bob ", Address: randomAddress()})
	require.NoError(t, err)
	assert.Equal(t, "bob", c.Name)

	_, err = s.CreateContact(ctx, models.Contact{OwnerID: owner, Name: "alice", Address: strings.Repeat("a", 64)})
	require.NoError(t, err)

	list, err := s.ListContacts(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alice", list[0].Name)

	c.Name = "robert"
	_, err = s.UpdateContact(ctx, c)
	require.NoError(t, err)

	_, err = s.UpdateContact(ctx, models.Contact{ID: c.ID, OwnerID: randomAddress(), Name: "mallory", Address: c.Address})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteContact(ctx, owner, c.ID))
	assert.ErrorIs(t, s.DeleteContact(ctx, owner, c.ID), ErrNotFound)

	list, err = s.ListContacts(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0].Name)
}
