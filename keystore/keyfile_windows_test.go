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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

func setDACL(t *testing.T, path string, sddl string) {
	t.Helper()
	sd, err := windows.SecurityDescriptorFromString(sddl)
	require.NoError(t, err)
	dacl, _, err := sd.DACL()
	require.NoError(t, err)
	err = windows.SetNamedSecurityInfo(
		path,
		windows.SE_FILE_OBJECT,
		windows.DACL_SECURITY_INFORMATION,
		nil, nil, dacl, nil,
	)
	require.NoError(t, err)
}

func TestInsecureFileModeWindows(t *testing.T) {
	tests := []struct {
		sddl string
		name string
	}{
		{"D:(A;;GR;;;WD)", "Everyone"},
		{"D:(A;;GR;;;BU)", "BUILTIN\\Users"},
		{"D:(A;;GR;;;AU)", "Authenticated Users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testFile := filepath.Join(t.TempDir(), "test.key")
			require.NoError(t, os.WriteFile(testFile, []byte("test"), 0o600))
			setDACL(t, testFile, tt.sddl)
			err := checkFilePermissions(testFile)
			require.ErrorIs(t, err, ErrInsecureFileMode)
			assert.Contains(t, err.Error(), tt.name)
		})
	}
}

func TestRestrictFilePermissionsWindows(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.key")
	require.NoError(t, os.WriteFile(testFile, []byte("test"), 0o600))
	// Default ACLs are inherited from the parent directory and typically
	// include BUILTIN\Users
	require.NoError(t, restrictFilePermissions(testFile))
	assert.NoError(t, checkFilePermissions(testFile))
}

func TestCheckSDDLWithoutDACL(t *testing.T) {
	err := checkSDDL("test.key", "O:BAG:SY")
	require.ErrorIs(t, err, ErrInsecureFileMode)
}

func TestCheckSDDLIgnoresDenyEntries(t *testing.T) {
	assert.NoError(t, checkSDDL("test.key", "O:BAD:P(D;;GA;;;WD)(A;;GA;;;SY)"))
	err := checkSDDL("test.key", "O:BAD:P(A;;GA;;;SY)(A;;GR;;;S-1-5-11)S:(AU;;GA;;;WD)")
	require.ErrorIs(t, err, ErrInsecureFileMode)
	assert.Contains(t, err.Error(), "Authenticated Users")
}
