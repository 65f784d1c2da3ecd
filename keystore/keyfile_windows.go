//go:build windows

// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package keystore

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sys/windows"
)

// envAllowInsecureKeyPerms=true skips the ACL check for key files whose
// access has been reviewed by hand
const envAllowInsecureKeyPerms = "BEQUEST_ALLOW_INSECURE_KEY_PERMS"

// broadTrustees are the groups a key file must never grant access to,
// keyed by SDDL alias and by SID
var broadTrustees = map[string]string{
	"WD":           "Everyone",
	"S-1-1-0":      "Everyone",
	"BU":           `BUILTIN\Users`,
	"S-1-5-32-545": `BUILTIN\Users`,
	"AU":           "Authenticated Users",
	"S-1-5-11":     "Authenticated Users",
}

// checkFilePermissions rejects a key file whose DACL lets a broad group in.
// It reads the DACL as SDDL, which keeps it clear of the unsafe package.
func checkFilePermissions(path string) error {
	if strings.EqualFold(os.Getenv(envAllowInsecureKeyPerms), "true") {
		slog.Warn(
			"key file ACL check skipped",
			"component", "keystore",
			"path", path,
			"env_var", envAllowInsecureKeyPerms,
		)
		return nil
	}
	sd, err := windows.GetNamedSecurityInfo(
		path,
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION,
	)
	if err != nil {
		return fmt.Errorf("read security info of %q: %w", path, err)
	}
	return checkSDDL(path, sd.String())
}

// checkOpenFilePermissions verifies permissions on an already-opened file.
// On Windows, NTFS prevents replacing a file that is held open, so using
// the file path from the open handle is safe against TOCTOU races.
func checkOpenFilePermissions(f *os.File) error {
	return checkFilePermissions(f.Name())
}

// restrictFilePermissions replaces the inherited DACL of a key file with a
// protected one granting access only to the current user
func restrictFilePermissions(path string) error {
	userSID, err := currentUserSID()
	if err != nil {
		return err
	}
	sd, err := windows.SecurityDescriptorFromString(
		fmt.Sprintf("D:P(A;;GA;;;%s)", userSID),
	)
	if err != nil {
		return fmt.Errorf("failed to build security descriptor: %w", err)
	}
	dacl, _, err := sd.DACL()
	if err != nil {
		return fmt.Errorf("failed to build DACL: %w", err)
	}
	err = windows.SetNamedSecurityInfo(
		path,
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION|
			windows.PROTECTED_DACL_SECURITY_INFORMATION,
		nil, nil, dacl, nil,
	)
	if err != nil {
		return fmt.Errorf("failed to restrict key file %q: %w", path, err)
	}
	return nil
}

func currentUserSID() (string, error) {
	var token windows.Token
	err := windows.OpenProcessToken(
		windows.CurrentProcess(),
		windows.TOKEN_QUERY,
		&token,
	)
	if err != nil {
		return "", fmt.Errorf("failed to open process token: %w", err)
	}
	defer token.Close()
	tokenUser, err := token.GetTokenUser()
	if err != nil {
		return "", fmt.Errorf("failed to get token user: %w", err)
	}
	return tokenUser.User.Sid.String(), nil
}

// checkSDDL fails when the DACL in sddl is missing or has an allow entry
// for a broad trustee
func checkSDDL(path, sddl string) error {
	_, dacl, found := strings.Cut(sddl, "D:")
	if !found {
		return fmt.Errorf(
			"key file %q has no DACL: %w",
			path,
			ErrInsecureFileMode,
		)
	}
	dacl, _, _ = strings.Cut(dacl, "S:")
	for entry := range strings.SplitSeq(dacl, "(") {
		entry, _, closed := strings.Cut(entry, ")")
		if !closed {
			continue
		}
		// type;flags;rights;object;inherit;trustee
		fields := strings.Split(entry, ";")
		if len(fields) < 6 || fields[0] != "A" {
			continue
		}
		if name, ok := broadTrustees[fields[5]]; ok {
			return fmt.Errorf(
				"key file %q grants access to %s: %w",
				path,
				name,
				ErrInsecureFileMode,
			)
		}
	}
	return nil
}
