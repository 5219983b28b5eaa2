// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/sleapenv/sleapenv/cmd/sleapenv"

func main() {
	cmd.Execute()
}
