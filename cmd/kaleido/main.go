/*
Copyright © 2026 the Kaleido authors.
This file is part of Kaleido.

Kaleido is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Kaleido is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Kaleido.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command kaleido is a command-line interface for the Kaleido
// measurement-uncertainty processor.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/kaleido/kaleidoutil"
)

func main() {
	if err := kaleidoutil.Root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(kaleidoutil.ExitCode(err))
	}
}
