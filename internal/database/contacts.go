package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"monallopay/internal/models"
	"strings"
)

// ListContacts returns the address book of owner ordered by name.
func (s *Store) ListContacts(ctx context.Context, owner string) ([]models.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, address
		FROM contacts
		WHERE owner_id = $1
		ORDER BY name, id
	`, strings.ToLower(owner))
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := []models.Contact{}
	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Address); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// CreateContact inserts c and returns it with its id.
func (s *Store) CreateContact(ctx context.Context, c models.Contact) (models.Contact, error) {
	c.OwnerID = strings.ToLower(c.OwnerID)
	c.Name = strings.TrimSpace(c.Name)
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO contacts (owner_id, name, address)
		VALUES ($1, $2, $3)
		RETURNING id
	`, c.OwnerID, c.Name, c.Address).Scan(&c.ID)
	if err != nil {
		return c, fmt.Errorf("insert contact: %w", err)
	}
	return c, nil
}

// UpdateContact renames or readdresses a contact owned by c.OwnerID.
func (s *Store) UpdateContact(ctx context.Context, c models.Contact) (models.Contact, error) {
	c.OwnerID = strings.ToLower(c.OwnerID)
	c.Name = strings.TrimSpace(c.Name)
	err := s.db.QueryRowContext(ctx, `
		UPDATE contacts
		SET name = $1, address = $2, updated_at = NOW()
		WHERE id = $3 AND owner_id = $4
		RETURNING id
	`, c.Name, c.Address, c.ID, c.OwnerID).Scan(&c.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	if err != nil {
		return c, fmt.Errorf("update contact %d: %w", c.ID, err)
	}
	return c, nil
}

// DeleteContact removes contact id if owner owns it.
func (s *Store) DeleteContact(ctx context.Context, owner string, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM contacts WHERE id = $1 AND owner_id = $2
	`, id, strings.ToLower(owner))
	if err != nil {
		return fmt.Errorf("delete contact %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
