// SPDX-License-Identifier: MPL-2.0

// Package dispatch is the composition root of one command run: it makes sure
// the requested package is installed and current, finds its entry point and
// hands it to the invoker. It is also the single place that decides how
// failures are presented (see Present).
package dispatch
