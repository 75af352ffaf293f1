package domain

// FulfillmentStatus is the derived completion state of a robot instance.
type FulfillmentStatus string

// Fulfillment states.
const (
	StatusComplete   FulfillmentStatus = "Complete"
	StatusIncomplete FulfillmentStatus = "Incomplete"
)

// RequirementProgress reports one design line against the instance's assignments.
type RequirementProgress struct {
	Type      string `json:"type"`
	Required  int    `json:"required"`
	Assigned  int    `json:"assigned"`
	Fulfilled bool   `json:"fulfilled"`
}

// Fulfillment is the full breakdown for an instance. It is always computed from live
// state and never stored.
type Fulfillment struct {
	InstanceID   string                `json:"instance_id"`
	DesignID     string                `json:"design_id"`
	DesignFound  bool                  `json:"design_found"`
	Status       FulfillmentStatus     `json:"status"`
	Requirements []RequirementProgress `json:"requirements"`
}

// Status reports Complete when every required line of the design has at least the
// required number of assigned parts of that type. A missing design is Incomplete.
func Status(design RobotDesign, found bool, instance RobotInstance) FulfillmentStatus {
	return Evaluate(design, found, instance).Status
}

// Evaluate computes the per-requirement breakdown and overall status.
func Evaluate(design RobotDesign, found bool, instance RobotInstance) Fulfillment {
	out := Fulfillment{
		InstanceID:  instance.ID,
		DesignID:    instance.DesignID,
		DesignFound: found,
		Status:      StatusIncomplete,
	}
	if !found {
		return out
	}
	complete := true
	out.Requirements = make([]RequirementProgress, 0, len(design.RequiredParts))
	for _, req := range design.RequiredParts {
		assigned := instance.CountType(req.Type)
		ok := assigned >= req.Quantity
		if !ok {
			complete = false
		}
		out.Requirements = append(out.Requirements, RequirementProgress{
			Type:      req.Type,
			Required:  req.Quantity,
			Assigned:  assigned,
			Fulfilled: ok,
		})
	}
	if complete {
		out.Status = StatusComplete
	}
	return out
}
