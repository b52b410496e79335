package hclconfig

// fileRoot is used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Scheduler  *schedulerBlock  `hcl:"scheduler,block"`
	Nodes      []*nodeBlock     `hcl:"node,block"`
	Simulation *simulationBlock `hcl:"simulation,block"`
	Telemetry  *telemetryBlock  `hcl:"telemetry,block"`
}

// schedulerBlock uses pointers so omitted attributes keep their defaults.
type schedulerBlock struct {
	GroupAmount      *int    `hcl:"group_amount,optional"`
	GroupSize        *int    `hcl:"group_size,optional"`
	AddThreshold     *int    `hcl:"add_threshold,optional"`
	DeleteThreshold  *int    `hcl:"delete_threshold,optional"`
	DebounceCycles   *int    `hcl:"debounce_cycles,optional"`
	NoAckBackoff     *int    `hcl:"noack_backoff,optional"`
	Multichannel     *int    `hcl:"multichannel,optional"`
	MaintainInterval *string `hcl:"maintain_interval,optional"`
	Hash             *string `hcl:"hash,optional"`
}

type nodeBlock struct {
	Name    string `hcl:"name,label"`
	Address string `hcl:"address"`
}

type simulationBlock struct {
	Parent   string        `hcl:"parent,optional"`
	Children []string      `hcl:"children,optional"`
	Phases   []*phaseBlock `hcl:"phase,block"`
}

type phaseBlock struct {
	Name          string `hcl:"name,label"`
	Cycles        int    `hcl:"cycles"`
	UplinkPackets int    `hcl:"uplink_packets,optional"`
	ChildRequest  int    `hcl:"child_request,optional"`
	RxPerInterval int    `hcl:"rx_per_interval,optional"`
	NoAckEvery    int    `hcl:"noack_every,optional"`
	MaintainEvery int    `hcl:"maintain_every,optional"`
	DropAcks      bool   `hcl:"drop_acks,optional"`
}

type telemetryBlock struct {
	SocketIOURL string `hcl:"socketio_url"`
	Namespace   string `hcl:"namespace,optional"`
}
