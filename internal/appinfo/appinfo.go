// Package appinfo describes the released calculator build: the identifiers
// and platform levels the mobile application was published with.
package appinfo

import "fmt"

const (
	// ApplicationID is the package name the application is published under.
	ApplicationID = "com.example.eap_emissionscalculator"

	// VersionCode is the internal, monotonically increasing release number.
	VersionCode = 1

	// VersionName is the user-visible release version.
	VersionName = "1.0"

	// MinSDK is the lowest platform API level the application installs on.
	MinSDK = 26

	// TargetSDK is the platform API level the application is tested against.
	TargetSDK = 36

	// CompileSDK is the platform API level the application is compiled with.
	CompileSDK = 36

	// JavaCompatibility is the source/target language level.
	JavaCompatibility = 11

	// ReleaseMinify reports whether release builds shrink code.
	ReleaseMinify = false
)

// ReleaseProguardFiles are the rule files applied to release builds.
var ReleaseProguardFiles = []string{"proguard-android-optimize.txt", "proguard-rules.pro"}

// Info is the build metadata in a serializable form.
type Info struct {
	ApplicationID        string   `json:"application_id"`
	VersionCode          int      `json:"version_code"`
	VersionName          string   `json:"version_name"`
	MinSDK               int      `json:"min_sdk"`
	TargetSDK            int      `json:"target_sdk"`
	CompileSDK           int      `json:"compile_sdk"`
	JavaCompatibility    int      `json:"java_compatibility"`
	ReleaseMinify        bool     `json:"release_minify"`
	ReleaseProguardFiles []string `json:"release_proguard_files"`
}

// Get returns the build metadata.
func Get() Info {
	files := make([]string, len(ReleaseProguardFiles))
	copy(files, ReleaseProguardFiles)
	return Info{
		ApplicationID:        ApplicationID,
		VersionCode:          VersionCode,
		VersionName:          VersionName,
		MinSDK:               MinSDK,
		TargetSDK:            TargetSDK,
		CompileSDK:           CompileSDK,
		JavaCompatibility:    JavaCompatibility,
		ReleaseMinify:        ReleaseMinify,
		ReleaseProguardFiles: files,
	}
}

// String renders a one-line summary, e.g.
// "com.example.eap_emissionscalculator 1.0 (1) sdk 26-36".
func (i Info) String() string {
	return fmt.Sprintf("%s %s (%d) sdk %d-%d", i.ApplicationID, i.VersionName, i.VersionCode, i.MinSDK, i.TargetSDK)
}
