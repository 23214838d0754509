package game

const (
	C                 = 600.0 // default light-speed cap in m/s
	SpeedCeilingRatio = 0.99  // fraction of C no entity may reach
	StandardGravity   = 9.81  // m/s², scales CrewGLimit

	SimHz         = 30.0 // server tick rate
	Dt            = 1.0 / SimHz
	InputHz       = 30.0 // client input sample/send rate
	InputDt       = 1.0 / InputHz
	BroadcastHz   = 15.0 // snapshot pushes per second
	HistoryKeepS  = 2.0  // seconds of unacknowledged input kept client side
	RoomMaxPlayer = 16

	SpawnRadius    = 400.0
	IdleInputEps   = 0.05 // |axis| below this counts as idle for damping
	ClampEps       = 1e-6 // minimum correction for the flight-assist clamp
	DefaultShipKey = "interceptor"

	ProtocolVersion = 1
)
