//go:build darwin

package main

import (
	"github.com/perlica/perlica/internal/channels"
	"github.com/perlica/perlica/internal/channels/imessage"
)

func buildIMessageAdapter(a *app) (channels.ChannelAdapter, error) {
	return imessage.New(imessage.DefaultConfig(), a.logger)
}
