package decoder

type Configuration struct {
	FileIn            string `json:"file_in" yaml:"file_in" toml:"file_in"`
	FileOut           string `json:"file_out" yaml:"file_out" toml:"file_out"`
	MaxEvents         int    `json:"max_events" yaml:"max_events" toml:"max_events"`
	Skip              int    `json:"skip" yaml:"skip" toml:"skip"`
	Verbosity         int    `json:"verbosity" yaml:"verbosity" toml:"verbosity"`
	Discard           bool   `json:"discard" yaml:"discard" toml:"discard"`
	SkipUnmapped      bool   `json:"skip_unmapped" yaml:"skip_unmapped" toml:"skip_unmapped"`
	CheckChannelMask  bool   `json:"check_channel_mask" yaml:"check_channel_mask" toml:"check_channel_mask"`
	CheckDeclaredSize bool   `json:"check_declared_size" yaml:"check_declared_size" toml:"check_declared_size"`
	StrictTermination bool   `json:"strict_termination" yaml:"strict_termination" toml:"strict_termination"`
	HeaderByteOrder   string `json:"header_byte_order" yaml:"header_byte_order" toml:"header_byte_order"`
	LookupSource      string `json:"lookup_source" yaml:"lookup_source" toml:"lookup_source"`
	ParamsFile        string `json:"params_file" yaml:"params_file" toml:"params_file"`
	Host              string `json:"host" yaml:"host" toml:"host"`
	User              string `json:"user" yaml:"user" toml:"user"`
	Passwd            string `json:"pass" yaml:"pass" toml:"pass"`
	DBName            string `json:"dbname" yaml:"dbname" toml:"dbname"`
	NumWorkers        int    `json:"num_workers" yaml:"num_workers" toml:"num_workers"`
	WriteData         bool   `json:"write_data" yaml:"write_data" toml:"write_data"`
	CompressionLevel  int    `json:"compression_level" yaml:"compression_level" toml:"compression_level"`
}

const (
	LookupFromASCII    = "ascii"
	LookupFromDatabase = "db"
)

// StreamOptions converts the configuration into per-stream decoding options.
func (c Configuration) StreamOptions() (Options, error) {
	order, err := ParseEndianness(c.HeaderByteOrder)
	if err != nil {
		return Options{}, err
	}
	return Options{
		HeaderByteOrder:   order,
		SkipUnmapped:      c.SkipUnmapped,
		CheckChannelMask:  c.CheckChannelMask,
		CheckDeclaredSize: c.CheckDeclaredSize,
		StrictTermination: c.StrictTermination,
		Verbosity:         c.Verbosity,
	}, nil
}
