// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package postgres

import "context"

// Truncate empties both tables so each test starts clean.
func Truncate(ctx context.Context, s *Store) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE provider_health, job_log`)
	return err
}
