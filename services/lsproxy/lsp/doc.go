// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lsp supervises one language server subprocess per language and
// multiplexes JSON-RPC requests over each server's stdio.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────────┐
//	│                            Supervisor                             │
//	│  language → process{state, backend, generation, timeouts}         │
//	│                                                                   │
//	│  not_started → starting → initializing → ready                    │
//	│                     ▲                       │                     │
//	│                     └──── degraded(reason) ◄┘ ──► stopped         │
//	└─────────────┬─────────────────────────────────────────────────────┘
//	              │ Backend (Spawn, Initialize, Request, Notify,
//	              │          SyncDocument, Shutdown, Exited)
//	┌─────────────▼─────────────┐
//	│  Server (stdio process)   │──► Protocol: id → pending call,
//	└───────────────────────────┘    one writer mutex, one reader
//
// # Components
//
//   - Supervisor: lifecycle state machine, idempotent first spawn,
//     out-of-band restarts with backoff, fail-fast while degraded
//   - Server: a language server process speaking LSP over stdio
//   - Protocol: Content-Length framing and request correlation
//   - ConfigRegistry: the language table (command, extensions, root files)
//
// # Thread Safety
//
// All exported types are safe for concurrent use.
//
// # Example
//
//	sup := lsp.NewSupervisor(registry, lsp.ProcessFactory(root, folders, 5*time.Second), lsp.DefaultSupervisorConfig())
//	defer sup.Close(context.Background())
//
//	raw, err := sup.Request(ctx, "go", "textDocument/definition", params)
package lsp
