// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry records what chatdesk spends on the remote API.
//
// Every completed call appends one cost record to an append-only ledger.
// The ledger answers a single question: how much has been spent since the
// first instant of the current UTC month.
//
// # Key Types
//
//   - Ledger: logs calls and computes the monthly total
//   - Store: append-only record backend
//   - FileStore: "<timestamp>,<cost>" lines in a text file
//   - SQLiteStore: cost_records table in a SQLite database
//   - Watcher: notifies when another process appends to a file ledger
//
// # Usage
//
//	store, err := telemetry.NewFileStore("api_costs.log")
//	ledger := telemetry.NewLedger(store, logger)
//	ledger.LogCall(ctx, 0.0042)
//	total, err := ledger.MonthlyCost(ctx)
package telemetry
