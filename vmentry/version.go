// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package vmentry // import "go.opentelemetry.io/jvmentry/vmentry"

import (
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/jvmentry/jvmti"
)

// hotspotNames are substrings of java.vm.name identifying HotSpot based VMs.
var hotspotNames = []string{"OpenJDK", "HotSpot", "GraalVM", "Dynamic Code Evolution"}

// minModernVersion is the first version numbered after the JDK release.
const minModernVersion = 9

// IsHotspot reports whether java.vm.name names a HotSpot based VM.
func IsHotspot(vmName string) bool {
	for _, name := range hotspotNames {
		if strings.Contains(vmName, name) {
			return true
		}
	}
	return false
}

// isZero reports whether the VM is the Zero interpreter port, which has no
// AsyncGetCallTrace support.
func isZero(vmName string) bool {
	return strings.Contains(vmName, "Zero")
}

// ParseHotspotVersion maps java.vm.version to the JDK major version. Before
// JDK 9 HotSpot had its own numbering: hs20 shipped with JDK 6, hs24 with
// JDK 7 and hs25 with JDK 8.
func ParseHotspotVersion(vmVersion string) int {
	switch {
	case strings.HasPrefix(vmVersion, "20."):
		return 6
	case strings.HasPrefix(vmVersion, "24."):
		return 7
	case strings.HasPrefix(vmVersion, "25."):
		return 8
	}
	end := strings.IndexFunc(vmVersion, func(r rune) bool { return r < '0' || r > '9' })
	if end < 0 {
		end = len(vmVersion)
	}
	major, _ := strconv.Atoi(vmVersion[:end])
	return max(major, minModernVersion)
}

// VersionFromMajor maps the value of Abstract_VM_Version::_vm_major_version
// the same way ParseHotspotVersion maps the version property. Zero means the
// variable was not initialized and gives 0.
func VersionFromMajor(major uint32) int {
	if major == 0 {
		return 0
	}
	return ParseHotspotVersion(strconv.FormatUint(uint64(major), 10) + ".")
}

// detectVersion determines the version tag. It returns 0 for VMs not based
// on HotSpot or when no probe succeeds.
func detectVersion(env jvmti.Env, libjvm *Library) (version int, vmName string) {
	vmName, jerr := env.GetSystemProperty("java.vm.name")
	if jerr != jvmti.ErrNone {
		log.Debugf("java.vm.name unavailable: %v", jerr)
		return versionFromLibrary(libjvm), ""
	}
	if !IsHotspot(vmName) {
		log.Infof("%q is not a HotSpot VM", vmName)
		return 0, vmName
	}
	vmVersion, jerr := env.GetSystemProperty("java.vm.version")
	if jerr != jvmti.ErrNone {
		log.Debugf("java.vm.version unavailable: %v", jerr)
		return versionFromLibrary(libjvm), vmName
	}
	return ParseHotspotVersion(vmVersion), vmName
}

// versionFromLibrary reads the major version straight from libjvm's data.
func versionFromLibrary(libjvm *Library) int {
	addr := libjvm.LookupDemangled(VMMajorVersionSymbol)
	if !addr.Valid() {
		return 0
	}
	major, err := libjvm.ReadUint32(addr)
	if err != nil {
		log.Debugf("Failed to read %s: %v", VMMajorVersionSymbol, err)
		return 0
	}
	return VersionFromMajor(major)
}
