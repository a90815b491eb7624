package storage

// Capability declares what a backend instance can do. It is fixed when
// the accessor is built. Higher layers pick strategies from it instead
// of assuming universal support: the writer chooses multipart vs append
// from the Write* flags, and part sizing honors the Min/Max bounds.
type Capability struct {
	Stat bool

	Read bool
	// ReadWithRange means bounded and open-ended offset ranges work.
	ReadWithRange bool
	// ReadWithSuffixRange means "last N bytes" requests work. Some
	// services accept ranges but cannot express suffix form.
	ReadWithSuffixRange bool

	Write bool
	// WriteCanEmpty means a zero-length object is a valid write.
	WriteCanEmpty bool
	// WriteCanAppend means the service has a native append primitive.
	WriteCanAppend bool
	// WriteCanMulti means the service has a reserve/upload/commit
	// multipart protocol.
	WriteCanMulti bool
	// WriteMultiMinSize is the smallest allowed non-final part, in
	// bytes. Zero means no declared minimum.
	WriteMultiMinSize int64
	// WriteMultiMaxSize is the largest allowed part, in bytes. Zero
	// means no declared maximum.
	WriteMultiMaxSize int64

	CreateDir bool
	Delete    bool
	Copy      bool

	List bool
	// ListWithDelimiter means common prefixes collapse into synthetic
	// directory entries when a delimiter is supplied.
	ListWithDelimiter bool

	Presign      bool
	PresignStat  bool
	PresignRead  bool
	PresignWrite bool
}
