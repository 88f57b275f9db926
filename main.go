// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/pkgrun/pkgrun/cmd/pkgrun"

func main() {
	cmd.Execute()
}
