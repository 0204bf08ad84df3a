package onedrive

// Quota describes storage allocation on a drive.
type Quota struct {
	Total     int64  `json:"total"`
	Used      int64  `json:"used"`
	Remaining int64  `json:"remaining"`
	Deleted   int64  `json:"deleted"`
	State     string `json:"state"`
}

// Identity identifies an actor (user, application, device).
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// IdentitySet groups the identities associated with an action.
type IdentitySet struct {
	User        *Identity `json:"user,omitempty"`
	Application *Identity `json:"application,omitempty"`
	Device      *Identity `json:"device,omitempty"`
}

// Drive is a OneDrive drive.
type Drive struct {
	ID        string       `json:"id"`
	DriveType string       `json:"driveType"`
	Owner     *IdentitySet `json:"owner,omitempty"`
	Quota     *Quota       `json:"quota,omitempty"`
}

// DriveCollection is a page of drives.
type DriveCollection struct {
	Value    []Drive `json:"value"`
	NextLink string  `json:"@odata.nextLink,omitempty"`
}

// Folder marks an item as a folder.
type Folder struct {
	ChildCount int64 `json:"childCount"`
}

// File marks an item as a file.
type File struct {
	MimeType string  `json:"mimeType"`
	Hashes   *Hashes `json:"hashes,omitempty"`
}

// Hashes carries the content hashes the service computed for a file.
type Hashes struct {
	Sha1Hash     string `json:"sha1Hash,omitempty"`
	Crc32Hash    string `json:"crc32Hash,omitempty"`
	QuickXorHash string `json:"quickXorHash,omitempty"`
}

// ItemReference points at an item or a parent location.
type ItemReference struct {
	DriveID string `json:"driveId,omitempty"`
	ID      string `json:"id,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Item is a drive item (file or folder).
type Item struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Size                 int64          `json:"size"`
	ETag                 string         `json:"eTag,omitempty"`
	CTag                 string         `json:"cTag,omitempty"`
	CreatedDateTime      Timestamp      `json:"createdDateTime,omitzero"`
	LastModifiedDateTime Timestamp      `json:"lastModifiedDateTime,omitzero"`
	CreatedBy            *IdentitySet   `json:"createdBy,omitempty"`
	LastModifiedBy       *IdentitySet   `json:"lastModifiedBy,omitempty"`
	ParentReference      *ItemReference `json:"parentReference,omitempty"`
	WebURL               string         `json:"webUrl,omitempty"`
	Folder               *Folder        `json:"folder,omitempty"`
	File                 *File          `json:"file,omitempty"`
	Deleted              *Deleted       `json:"deleted,omitempty"`
}

// Deleted marks an item as deleted.
type Deleted struct {
	State string `json:"state,omitempty"`
}

// ItemCollection is a page of items.
type ItemCollection struct {
	Value    []Item `json:"value"`
	NextLink string `json:"@odata.nextLink,omitempty"`
}
