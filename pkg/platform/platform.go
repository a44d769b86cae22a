// Package platform describes the target a recipe is built for.
//
// A Platform is the tuple of settings that option pruning and library
// naming depend on: operating system, architecture, compiler and build type.
// Values use the capitalization conventional in native package managers
// ("Windows", "Linux", "Macos", "x86_64", "armv8", "gcc", "msvc", "Release").
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// OS is an operating system setting.
type OS string

// Supported operating systems.
const (
	Linux   OS = "Linux"
	Windows OS = "Windows"
	Macos   OS = "Macos"
	FreeBSD OS = "FreeBSD"
)

// ParseOS parses a string into an OS.
func ParseOS(s string) (OS, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linux":
		return Linux, nil
	case "windows", "win", "win32":
		return Windows, nil
	case "macos", "darwin", "osx":
		return Macos, nil
	case "freebsd":
		return FreeBSD, nil
	default:
		return "", fmt.Errorf("invalid os: %s", s)
	}
}

// Arch is a CPU architecture setting.
type Arch string

// Supported architectures.
const (
	X86    Arch = "x86"
	X86_64 Arch = "x86_64"
	ARMv7  Arch = "armv7"
	ARMv8  Arch = "armv8"
)

// ParseArch parses a string into an Arch.
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x86", "386", "i686":
		return X86, nil
	case "x86_64", "amd64", "x64":
		return X86_64, nil
	case "armv7", "arm":
		return ARMv7, nil
	case "armv8", "arm64", "aarch64":
		return ARMv8, nil
	default:
		return "", fmt.Errorf("invalid arch: %s", s)
	}
}

// Compiler is a compiler family setting.
type Compiler string

// Supported compilers.
const (
	GCC        Compiler = "gcc"
	Clang      Compiler = "clang"
	AppleClang Compiler = "apple-clang"
	MSVC       Compiler = "msvc"
)

// ParseCompiler parses a string into a Compiler.
func ParseCompiler(s string) (Compiler, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gcc", "g++":
		return GCC, nil
	case "clang", "clang++":
		return Clang, nil
	case "apple-clang", "appleclang":
		return AppleClang, nil
	case "msvc", "visual studio", "cl":
		return MSVC, nil
	default:
		return "", fmt.Errorf("invalid compiler: %s", s)
	}
}

// BuildType is a build configuration setting.
type BuildType string

// Supported build types.
const (
	Release        BuildType = "Release"
	Debug          BuildType = "Debug"
	RelWithDebInfo BuildType = "RelWithDebInfo"
	MinSizeRel     BuildType = "MinSizeRel"
)

// ParseBuildType parses a string into a BuildType.
func ParseBuildType(s string) (BuildType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "release":
		return Release, nil
	case "debug":
		return Debug, nil
	case "relwithdebinfo":
		return RelWithDebInfo, nil
	case "minsizerel":
		return MinSizeRel, nil
	default:
		return "", fmt.Errorf("invalid build type: %s", s)
	}
}

// Platform is the target platform descriptor.
type Platform struct {
	OS        OS        `json:"os" yaml:"os" toml:"os"`
	Arch      Arch      `json:"arch" yaml:"arch" toml:"arch"`
	Compiler  Compiler  `json:"compiler" yaml:"compiler" toml:"compiler"`
	BuildType BuildType `json:"build_type" yaml:"build_type" toml:"build_type"`
}

// String returns the canonical "os/arch/compiler/build_type" form accepted by Parse.
func (p Platform) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", p.OS, p.Arch, p.Compiler, p.BuildType)
}

// Setting returns the value of a named setting ("os", "arch", "compiler",
// "build_type"). The second result is false for unknown names.
func (p Platform) Setting(name string) (string, bool) {
	switch name {
	case "os":
		return string(p.OS), true
	case "arch":
		return string(p.Arch), true
	case "compiler":
		return string(p.Compiler), true
	case "build_type":
		return string(p.BuildType), true
	}
	return "", false
}

// Settings lists the setting names understood by Setting.
func Settings() []string {
	return []string{"arch", "build_type", "compiler", "os"}
}

// Parse parses "os/arch/compiler[/build_type]". The build type defaults to Release.
func Parse(s string) (Platform, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 3 || len(parts) > 4 {
		return Platform{}, fmt.Errorf("invalid platform %q: want os/arch/compiler[/build_type]", s)
	}
	var (
		p   Platform
		err error
	)
	if p.OS, err = ParseOS(parts[0]); err != nil {
		return Platform{}, err
	}
	if p.Arch, err = ParseArch(parts[1]); err != nil {
		return Platform{}, err
	}
	if p.Compiler, err = ParseCompiler(parts[2]); err != nil {
		return Platform{}, err
	}
	bt := ""
	if len(parts) == 4 {
		bt = parts[3]
	}
	if p.BuildType, err = ParseBuildType(bt); err != nil {
		return Platform{}, err
	}
	return p, nil
}

// Host returns the platform of the running process with the conventional
// default compiler for its OS and a Release build type.
func Host() Platform {
	p := Platform{BuildType: Release}
	if os, err := ParseOS(runtime.GOOS); err == nil {
		p.OS = os
	} else {
		p.OS = OS(runtime.GOOS)
	}
	if arch, err := ParseArch(runtime.GOARCH); err == nil {
		p.Arch = arch
	} else {
		p.Arch = Arch(runtime.GOARCH)
	}
	switch p.OS {
	case Windows:
		p.Compiler = MSVC
	case Macos:
		p.Compiler = AppleClang
	case FreeBSD:
		p.Compiler = Clang
	default:
		p.Compiler = GCC
	}
	return p
}

// IsWindows reports whether libraries follow Windows naming (foo.lib, foo.dll).
func (p Platform) IsWindows() bool { return p.OS == Windows }
