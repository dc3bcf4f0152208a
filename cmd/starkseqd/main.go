// Copyright 2024 The Sequencer Authors
// This file is part of Sequencer.

package main

import "os"

func main() {
	os.Exit(Execute())
}
