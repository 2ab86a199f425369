/*
Package mesosapi names the master driver protocol at the boundary this
module is a client of: SchedulerDriver (outbound) and EventHandler
(inbound), plus the Operation/Filters DTOs an Accept call carries. No
concrete driver ships here — FakeDriver is a test double only.
*/
package mesosapi
