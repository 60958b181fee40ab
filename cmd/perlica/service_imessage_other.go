//go:build !darwin

package main

import (
	"fmt"

	"github.com/perlica/perlica/internal/channels"
)

func buildIMessageAdapter(a *app) (channels.ChannelAdapter, error) {
	return nil, fmt.Errorf("service: imessage channel requires macOS")
}
