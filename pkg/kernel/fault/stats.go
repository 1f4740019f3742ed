// Copyright 2025 The Minos Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fault

import (
	"fmt"

	"github.com/minos-kernel/minos/pkg/atomicbitops"
)

// Stats counts handled faults. One Stats is created at kernel initialization
// and shared by every Handler for the machine's lifetime; counters only ever
// increase.
type Stats struct {
	// PageFaults is the number of page faults processed.
	PageFaults atomicbitops.Uint64
}

// String implements fmt.Stringer.String.
func (s *Stats) String() string {
	return fmt.Sprintf("Exception: %d page faults", s.PageFaults.Load())
}
