// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"strings"

	"github.com/mssola/useragent"
)

// UnknownDevice labels sessions whose client sent no usable User-Agent.
const UnknownDevice = "Unknown device"

/*
DeviceLabel renders a short, human-readable device description.

Example:

	DeviceLabel("Mozilla/5.0 (Windows NT 10.0; Win64; x64) ... Chrome/120.0.0.0 Safari/537.36")
	// "Chrome 120 on Windows 10"
*/
func DeviceLabel(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return UnknownDevice
	}

	agent := useragent.New(userAgent)
	if agent.Bot() {
		return "Bot"
	}

	name, version := agent.Browser()
	if major, _, found := strings.Cut(version, "."); found {
		version = major
	}

	browser := strings.TrimSpace(name + " " + version)
	system := agent.OSInfo().Name
	if osVersion := agent.OSInfo().Version; osVersion != "" {
		system += " " + osVersion
	}
	system = strings.TrimSpace(system)

	switch {
	case browser == "" && system == "":
		return UnknownDevice
	case system == "":
		return browser
	case browser == "":
		return system
	}
	return browser + " on " + system
}
