// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/launchpad/launchpad/cmd/launchpad"

func main() {
	cmd.Execute()
}
