package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modstage/modstage/pkg/nexus"
)

func TestSelectFile(t *testing.T) {
	files := []nexus.FileInfo{
		{FileID: 10, FileName: "old-main.zip", CategoryID: fileCategoryMain},
		{FileID: 20, FileName: "optional.zip", CategoryID: 3},
		{FileID: 30, FileName: "new-main.zip", CategoryID: fileCategoryMain},
		{FileID: 40, FileName: "archived.zip", CategoryID: fileCategoryArchived},
	}

	tests := []struct {
		name     string
		files    []nexus.FileInfo
		fileID   int64
		wantID   int64
		wantNone bool
	}{
		{
			name:   "explicit id wins over categories",
			files:  files,
			fileID: 20,
			wantID: 20,
		},
		{
			name:     "explicit id not in listing",
			files:    files,
			fileID:   99,
			wantNone: true,
		},
		{
			name:   "newest main file by default",
			files:  files,
			wantID: 30,
		},
		{
			name: "newest non-archived when no main exists",
			files: []nexus.FileInfo{
				{FileID: 5, CategoryID: 3},
				{FileID: 9, CategoryID: fileCategoryArchived},
				{FileID: 7, CategoryID: 4},
			},
			wantID: 7,
		},
		{
			name: "only archived files",
			files: []nexus.FileInfo{
				{FileID: 9, CategoryID: fileCategoryArchived},
			},
			wantNone: true,
		},
		{
			name:     "empty listing",
			files:    nil,
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectFile(tt.files, tt.fileID)
			if tt.wantNone {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.FileID)
		})
	}
}
