package store

// FileInfo holds the tracked mtime and size for an imported file.
type FileInfo struct {
	ProfileID string
	MtimeNs   int64
	SizeBytes int64
}

// GetTrackedFiles returns a map of file_path -> FileInfo for all tracked files.
func (d *DB) GetTrackedFiles() (map[string]FileInfo, error) {
	rows, err := d.db.Query("SELECT file_path, profile_id, mtime_ns, size_bytes FROM file_tracker")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]FileInfo)
	for rows.Next() {
		var path string
		var fi FileInfo
		if err := rows.Scan(&path, &fi.ProfileID, &fi.MtimeNs, &fi.SizeBytes); err != nil {
			return nil, err
		}
		result[path] = fi
	}
	return result, rows.Err()
}

// TrackFile records the mtime and size a file had when it was imported.
func (d *DB) TrackFile(filePath string, fi FileInfo) error {
	_, err := d.db.Exec(`INSERT OR REPLACE INTO file_tracker (file_path, profile_id, mtime_ns, size_bytes)
		VALUES (?, ?, ?, ?)`, filePath, fi.ProfileID, fi.MtimeNs, fi.SizeBytes)
	return err
}

// DeleteFileTracker removes a file tracking entry.
func (d *DB) DeleteFileTracker(filePath string) error {
	_, err := d.db.Exec("DELETE FROM file_tracker WHERE file_path = ?", filePath)
	return err
}
