// internal/pkg/session/store.go
//
// Package session keeps in-progress promotion workflows in Redis. A workflow lives
// under its owner's key space so another identity cannot load it by id, and expires
// after a period of inactivity.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"boost-service/internal/domain/promotion"
	xerrors "boost-service/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	client  *redis.Client
	idleTTL time.Duration
}

func NewStore(client *redis.Client, idleTTL time.Duration) *Store {
	if idleTTL <= 0 {
		idleTTL = 2 * time.Hour
	}
	return &Store{
		client:  client,
		idleTTL: idleTTL,
	}
}

// Save stores the workflow and restarts its idle timer.
func (s *Store) Save(ctx context.Context, wf *promotion.Workflow) error {
	data, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	if err := s.client.Set(ctx, s.workflowKey(wf.IdentityID, wf.ID), data, s.idleTTL).Err(); err != nil {
		return fmt.Errorf("failed to store workflow in redis: %w", err)
	}
	return nil
}

// Get loads one of identityID's workflows. Unknown, expired, and foreign ids all
// yield ErrNotFound.
func (s *Store) Get(ctx context.Context, identityID int64, id string) (*promotion.Workflow, error) {
	data, err := s.client.Get(ctx, s.workflowKey(identityID, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	var wf promotion.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return &wf, nil
}

// ListByIdentity returns every live workflow of identityID.
func (s *Store) ListByIdentity(ctx context.Context, identityID int64) ([]*promotion.Workflow, error) {
	pattern := fmt.Sprintf("promotion:%d:*", identityID)

	var workflows []*promotion.Workflow
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue // expired between SCAN and GET
		}

		var wf promotion.Workflow
		if err := json.Unmarshal(data, &wf); err != nil {
			continue
		}
		workflows = append(workflows, &wf)
	}

	return workflows, iter.Err()
}

func (s *Store) workflowKey(identityID int64, id string) string {
	return fmt.Sprintf("promotion:%d:%s", identityID, id)
}
