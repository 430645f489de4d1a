package fusionx

// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Heavily inspired by https://github.com/btcsuite/btcd/blob/master/version.go
// Copyright (C) 2015-2023 The Lightning Network Developers

import (
	"fmt"
	"strings"
)

// Commit stores the commit hash of this build. It is set with -ldflags.
var Commit string

// semanticAlphabet holds the characters allowed in pre-release and build
// metadata identifiers.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

const (
	appMajor uint = 0
	appMinor uint = 3
	appPatch uint = 0

	// appPreRelease must only use semanticAlphabet.
	appPreRelease = "alpha"

	// defaultAgentName prefixes the User-Agent of resolver webhooks.
	defaultAgentName = "fusiond"

	// maxNetworkLen caps the network tag in the user agent.
	maxNetworkLen = 32
)

// AgentName is the software name resolvers see in webhook requests. An
// application embedding the coordinator may overwrite it.
var AgentName = defaultAgentName

// Version returns the semantic version and the build commit.
func Version() string {
	return fmt.Sprintf("%s commit=%s", semanticVersion(), Commit)
}

// UserAgent returns the User-Agent header sent with resolver webhooks. The
// network tag lets resolvers tell a simnet coordinator from a live one.
func UserAgent(network string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/v%s", AgentName, semanticVersion())

	if Commit != "" {
		fmt.Fprintf(&b, " commit=%s", Commit)
	}

	network = sanitize(strings.TrimSpace(network), semanticAlphabet)
	if len(network) > maxNetworkLen {
		network = network[:maxNetworkLen]
	}
	if network != "" {
		fmt.Fprintf(&b, " network=%s", network)
	}

	return b.String()
}

// semanticVersion returns major.minor.patch plus the pre-release tag.
func semanticVersion() string {
	version := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)

	if pre := sanitize(appPreRelease, semanticAlphabet); pre != "" {
		version += "-" + pre
	}

	return version
}

// sanitize drops every rune of str not contained in alphabet.
func sanitize(str, alphabet string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(alphabet, r) {
			return r
		}
		return -1
	}, str)
}
