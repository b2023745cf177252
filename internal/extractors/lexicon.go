package extractors

import "github.com/miradorstack/mirador-hotspot/internal/models"

// RootCauseTerms holds weighted vocabulary per root cause.
var RootCauseTerms = map[models.RootCause]TermSet{
	models.RootCauseProcess: NewTermSet(
		T("approv*"), T("workflow*"), T("process*"), T("procedure*"), T("bottleneck*"),
		T("sign off"), T("signoff"), T("handoff*"), T("hand off"), T("review cycle*"),
		W("submittal*", 0.8), W("rfi*", 0.6), W("change order*", 0.8), T("red tape"),
		T("bureaucra*"), T("paperwork"), T("protocol*"), W("sop", 0.8), W("delay*", 0.6),
		W("wait*", 0.5), W("turnaround", 0.7), W("permit*", 0.5), W("inefficien*", 0.7),
		W("redundan*", 0.6), W("manual", 0.5), W("escalat*", 0.4), W("routing", 0.6),
	),
	models.RootCauseResource: NewTermSet(
		T("staff*"), T("understaff*"), T("headcount"), T("hiring"), T("hire"), T("workload*"),
		T("capacity"), T("overtime"), T("burnout"), T("bandwidth"), T("resourc*"),
		T("shortage*"), T("overallocat*"), W("utilization", 0.7), W("budget*", 0.6),
		W("funding", 0.6), W("senior", 0.4), W("turnover", 0.8), T("attrition"),
		W("contractor*", 0.4), W("overload*", 0.8), W("availability", 0.6), W("stretched", 0.7),
	),
	models.RootCauseTechnology: NewTermSet(
		T("bim"), T("revit"), T("autocad"), T("cad"), T("software"), W("licens*", 0.7),
		T("server*"), T("network*"), T("vpn"), T("cloud"), T("bim 360"), T("navisworks"),
		T("rhino"), T("grasshopper"), T("enscape"), T("archicad"), T("plugin*"), T("crash*"),
		T("sync"), T("synchroni*"), T("worksharing"), T("central model"), T("central file"),
		W("model*", 0.5), W("corrupt*", 0.8), W("laptop*", 0.8), T("hardware"),
		W("file server*", 0.8), W("upgrade*", 0.6), W("version*", 0.4), W("integration*", 0.4),
		W("database*", 0.7), W("computer*", 0.7), W("render*", 0.6), T("outage*"),
		W("printer*", 0.6), W("plotter*", 0.6), W("freez*", 0.6), W("lag*", 0.4),
	),
	models.RootCauseQuality: NewTermSet(
		T("error*"), T("mistake*"), T("rework*"), T("defect*"), T("clash*"), T("qa"), T("qc"),
		T("quality"), W("inspection*", 0.6), T("punch list"), W("code complian*", 0.6),
		T("inaccura*"), T("discrepanc*"), T("omission*"), W("corrupt*", 0.4),
		W("calculation*", 0.6), T("structural calculation*"), W("check*", 0.4),
		W("redline*", 0.6), T("accuracy"), W("standards", 0.5), W("incorrect*", 0.8),
		W("coordination issue*", 0.8), W("failed", 0.4),
	),
	models.RootCauseCommunication: NewTermSet(
		T("communicat*"), T("miscommunicat*"), W("email*", 0.8), W("meeting*", 0.7),
		W("inform*", 0.6), T("silo*"), T("visibility"), T("transparen*"), T("misalign*"),
		T("unclear"), T("confus*"), W("feedback", 0.7), W("notif*", 0.7), W("update*", 0.4),
		T("client expectation*"), W("coordinat*", 0.6), W("collaborat*", 0.6),
		W("handover", 0.5), W("status report*", 0.6), T("not aware"), W("messag*", 0.6),
		W("out of the loop", 1.0), W("nobody told", 1.0),
	),
	models.RootCauseTraining: NewTermSet(
		T("train*"), T("onboard*"), T("skill*"), T("knowledge"), W("learning", 0.8),
		T("mentor*"), T("certif*"), T("upskill*"), T("tutorial*"), T("education"),
		T("new hire*"), W("junior*", 0.6), W("experience", 0.4), T("inexperienc*"),
		W("best practice*", 0.6), T("how to"), T("competen*"), W("workshop*", 0.6),
		W("course*", 0.6), W("unfamiliar", 0.8),
	),
}

// DepartmentTerms maps department slots onto detection vocabulary.
var DepartmentTerms = map[string]TermSet{
	"ARCHITECTURE": NewTermSet(
		T("architect*"), T("design team"), T("facade*"), T("floor plan*"), T("elevation*"),
		T("massing"), T("design intent"),
	),
	"STRUCTURAL": NewTermSet(
		T("structur*"), T("beam*"), T("column*"), T("foundation*"), T("steel"), T("concrete"),
		T("seismic"), T("load calc*"),
	),
	"MEP": NewTermSet(
		T("mep"), T("mechanical"), T("electrical"), T("plumbing"), T("hvac"), T("ductwork"),
		T("fire protection"),
	),
	"CIVIL": NewTermSet(
		T("civil"), T("site plan*"), T("grading"), T("drainage"), T("stormwater"), T("survey*"),
		T("roadway*"),
	),
	"INTERIOR_DESIGN": NewTermSet(
		T("interior*"), T("furniture"), T("ffe"), T("finishes"), T("millwork"), T("fixture*"),
	),
	"PROJECT_MANAGEMENT": NewTermSet(
		T("project manag*"), T("pm"), T("pms"), T("schedule*"), T("deadline*"), T("milestone*"),
		T("deliverable*"), T("fee*"), T("invoice*"),
	),
	"IT": NewTermSet(
		T("it department"), T("it support"), T("it team"), T("helpdesk"), T("help desk"),
		T("server*"), T("network*"), T("vpn"), T("laptop*"), T("hardware"),
		T("cybersecurity"), T("password*"),
	),
	"OPERATIONS": NewTermSet(
		T("operations"), T("hr"), T("human resources"), T("facilit*"), T("office manag*"),
		T("finance"), T("accounting"), T("procurement"), T("polic*"),
	),
}

// DepartmentAliases normalises free-form department labels from metadata.
var DepartmentAliases = map[string]string{
	"architecture":           "ARCHITECTURE",
	"architectural":          "ARCHITECTURE",
	"design":                 "ARCHITECTURE",
	"structural":             "STRUCTURAL",
	"structural engineering": "STRUCTURAL",
	"structures":             "STRUCTURAL",
	"mep":                    "MEP",
	"mep engineering":        "MEP",
	"mechanical":             "MEP",
	"electrical":             "MEP",
	"civil":                  "CIVIL",
	"civil engineering":      "CIVIL",
	"interior design":        "INTERIOR_DESIGN",
	"interiors":              "INTERIOR_DESIGN",
	"interior_design":        "INTERIOR_DESIGN",
	"project management":     "PROJECT_MANAGEMENT",
	"project_management":     "PROJECT_MANAGEMENT",
	"pm":                     "PROJECT_MANAGEMENT",
	"it":                     "IT",
	"information technology": "IT",
	"operations":             "OPERATIONS",
	"ops":                    "OPERATIONS",
	"hr":                     "OPERATIONS",
	"finance":                "OPERATIONS",
}

// PhaseTerms maps project phase slots onto vocabulary.
var PhaseTerms = map[string]TermSet{
	"DESIGN": NewTermSet(
		T("concept*"), T("schematic*"), T("design development"), T("feasibility"),
		T("design phase"), T("programming"), T("massing"), W("design", 0.3),
	),
	"DOCUMENTATION": NewTermSet(
		T("construction document*"), T("cds"), T("drawing*"), W("permit*", 0.7),
		T("specification*"), T("documentation"), T("sheet*"), W("submittal*", 0.5),
		W("detail*", 0.5), W("redline*", 0.7),
	),
	"CONSTRUCTION": NewTermSet(
		T("construction administration"), T("site visit*"), W("site", 0.6), T("contractor*"),
		T("field"), T("rfi*"), T("punch list"), T("change order*"), T("installation"),
		W("inspection*", 0.7),
	),
}

// ConceptAxes are the twenty semantic axes of the text embedding.
var ConceptAxes = [models.TextEmbeddingDims]TermSet{
	NewTermSet(T("approv*"), T("sign off"), T("signoff"), T("authoriz*"), T("permission*"), T("consent"), T("endorse*")),
	NewTermSet(T("delay*"), T("late"), T("behind schedule"), T("slow*"), T("wait*"), T("bottleneck*"), T("backlog*"), T("stall*"), T("held up"), T("turnaround"), T("weeks")),
	NewTermSet(T("workflow*"), T("process*"), T("procedure*"), T("step*"), T("routing"), T("handoff*"), T("sequence")),
	NewTermSet(T("communicat*"), T("email*"), T("meeting*"), T("inform*"), T("messag*"), T("notif*"), T("feedback"), T("silo*")),
	NewTermSet(T("staff*"), T("headcount"), T("hiring"), T("hire"), T("workload*"), T("capacity"), T("overtime"), T("burnout"), T("personnel"), T("turnover")),
	NewTermSet(T("budget*"), T("cost*"), T("fee*"), T("invoice*"), T("overrun*"), T("funding"), T("expens*"), T("profit*"), T("margin*"), T("spend*")),
	NewTermSet(T("software"), T("tool*"), T("plugin*"), T("licens*"), T("application*"), T("platform*"), T("upgrade*"), T("version*")),
	NewTermSet(T("bim"), T("revit"), T("model*"), T("central"), T("worksharing"), T("sync"), T("synchroni*"), T("navisworks"), T("autocad"), T("cad")),
	NewTermSet(T("coordinat*"), T("clash*"), T("conflict*"), T("interdisciplinary"), T("consultant*"), T("overlap*")),
	NewTermSet(T("error*"), T("mistake*"), T("rework*"), T("defect*"), T("inaccura*"), T("discrepanc*"), T("omission*"), T("corrupt*"), T("incorrect*")),
	NewTermSet(T("train*"), T("onboard*"), T("skill*"), T("knowledge"), T("learn*"), T("mentor*"), T("certif*"), T("upskill*"), T("tutorial*")),
	NewTermSet(T("client*"), T("owner*"), T("customer*"), T("stakeholder*"), T("expectation*"), T("satisfaction")),
	NewTermSet(T("code"), T("codes"), T("complian*"), T("regulat*"), T("permit*"), T("zoning"), T("accessibility")),
	NewTermSet(T("drawing*"), T("document*"), T("sheet*"), T("specification*"), T("detail*"), T("redline*"), T("submittal*")),
	NewTermSet(T("structur*"), T("calculation*"), T("load*"), T("beam*"), T("seismic"), T("mep"), T("hvac")),
	NewTermSet(T("site"), T("field"), T("contractor*"), T("construction"), T("installation"), T("rfi*")),
	NewTermSet(T("vendor*"), T("supplier*"), T("procure*"), T("purchas*"), T("contract"), T("contracts"), T("subscription*")),
	NewTermSet(T("safety"), T("risk*"), T("hazard*"), T("liabilit*"), T("injur*"), T("claim*")),
	NewTermSet(T("sustainab*"), T("energy"), T("leed"), T("carbon"), T("environmental")),
	NewTermSet(T("server*"), T("network*"), T("file"), T("files"), T("data"), T("storage"), T("backup*"), T("vpn"), T("cloud"), T("outage*"), T("crash*"), T("laptop*"), T("hardware")),
}

// BusinessThemeCount is the number of business-context themes; each contributes three dims.
const BusinessThemeCount = models.BusinessContextDims / 3

// BusinessThemes are the business-context themes in vector order.
var BusinessThemes = [BusinessThemeCount]TermSet{
	NewTermSet(T("schedule*"), T("deadline*"), T("milestone*"), T("delay*"), T("late"), T("timeline*")),
	NewTermSet(T("budget*"), T("cost*"), T("fee*"), T("overrun*"), T("profit*"), T("margin*"), T("invoice*")),
	NewTermSet(T("client*"), T("owner*"), T("customer*"), T("stakeholder*"), T("satisfaction")),
	NewTermSet(T("code"), T("codes"), T("complian*"), T("regulat*"), T("permit*"), T("zoning"), T("accessibility")),
	NewTermSet(T("safety"), T("hazard*"), T("injur*"), T("liabilit*"), T("risk*")),
	NewTermSet(T("coordinat*"), T("clash*"), T("consultant*"), T("interdisciplinary"), T("collaborat*")),
	NewTermSet(T("drawing*"), T("document*"), T("specification*"), T("sheet*"), T("submittal*")),
	NewTermSet(T("staff*"), T("hiring"), T("hire"), T("workload*"), T("capacity"), T("overtime"), T("burnout"), T("turnover")),
	NewTermSet(T("software"), T("bim"), T("revit"), T("cad"), T("server*"), T("network*"), T("licens*"), T("model*")),
	NewTermSet(T("error*"), T("rework*"), T("defect*"), T("mistake*"), T("qa"), T("qc"), T("quality")),
	NewTermSet(T("vendor*"), T("supplier*"), T("procure*"), T("purchas*"), T("contract"), T("contracts")),
	NewTermSet(T("sustainab*"), T("energy"), T("leed"), T("carbon")),
	NewTermSet(T("strateg*"), T("growth"), T("market*"), T("competit*"), T("revenue*"), T("reputation*"), T("proposal*"), T("business development")),
}

// StrategicThemes indexes BusinessThemes that drive strategic priority.
var StrategicThemes = []int{1, 2, 3, 4, 12}

// ClientTheme indexes the client theme in BusinessThemes.
const ClientTheme = 2

// Jargon is architecture/engineering vocabulary used for terminology density.
var Jargon = NewTermSet(
	T("bim"), T("revit"), T("autocad"), T("cad"), T("navisworks"), T("rhino"), T("grasshopper"),
	T("enscape"), T("archicad"), T("bluebeam"), T("procore"), T("bim 360"), T("worksharing"),
	T("workset*"), T("central model"), T("central file"), T("linked model*"), T("ifc"),
	T("point cloud"), T("clash*"), T("rfi*"), T("submittal*"), T("change order*"),
	T("punch list"), T("construction document*"), T("schematic*"), T("design development"),
	T("specification*"), T("structur*"), T("mep"), T("hvac"), T("ductwork"), T("seismic"),
	T("calculation*"), T("beam*"), T("column*"), T("foundation*"), T("facade*"),
	T("floor plan*"), T("elevation*"), T("redline*"), T("drawing*"), T("sheet*"), T("zoning"),
	T("permit*"), T("code complian*"), T("leed"), T("massing"), T("model*"), T("sync"),
	T("synchroni*"), T("famil*"), T("survey*"), T("grading"), T("drainage"), T("millwork"),
	T("consultant*"), T("contractor*"), T("site visit*"), T("qa"), T("qc"), T("detail*"),
	T("render*"), T("plotter*"),
)

// TechnicalJargon is the engineering/technology subset used for technical depth.
var TechnicalJargon = NewTermSet(
	T("bim"), T("revit"), T("autocad"), T("cad"), T("navisworks"), T("worksharing"),
	T("central model"), T("linked model*"), T("ifc"), T("structur*"), T("mep"), T("hvac"),
	T("seismic"), T("calculation*"), T("beam*"), T("column*"), T("foundation*"), T("sync"),
	T("synchroni*"), T("clash*"), T("render*"),
)

// ImpactTerms raise business impact.
var ImpactTerms = NewTermSet(
	T("client*"), T("revenue*"), T("budget*"), T("cost*"), T("deadline*"), T("schedule*"),
	T("liabilit*"), T("reputation*"), T("fee*"), T("overrun*"), T("lost"), T("loss*"),
	T("risk*"), T("safety"), T("penalt*"), T("delay*"), T("rework*"),
)

// ComplexityCues describe broad, multi-party scope.
var ComplexityCues = NewTermSet(
	T("multiple"), T("across"), T("firm wide"), T("firmwide"), T("company wide"),
	T("enterprise"), T("restructur*"), T("overhaul*"), T("transform*"), T("several"),
	T("every"), T("all departments"), T("all teams"), T("cross functional"),
	T("organization*"), T("systemic"), T("long term"), T("quarters"), T("years"),
	T("integration*"), T("dependenc*"),
)

// ResourceCues describe resource-heavy remedies.
var ResourceCues = NewTermSet(
	T("hiring"), T("hire"), T("headcount"), T("budget*"), T("investment*"), T("invest"),
	T("funding"), T("million*"), T("capital"), T("senior staff"), T("new staff"),
	T("consultant*"), T("procure*"), T("replace all"), T("migration"), T("migrate"),
)

// ClarityCues mark a stated cause-effect relationship.
var ClarityCues = NewTermSet(
	T("because"), T("due to"), T("caused by"), T("causing"), T("cause"), T("causes"),
	T("results in"), T("resulting"), T("leads to"), T("leading to"), T("when"), T("since"),
	T("which means"), T("so that"),
)

// SolutionCues mark a proposed remedy.
var SolutionCues = NewTermSet(
	T("need*"), T("should"), T("propos*"), T("recommend*"), T("suggest*"), T("could"),
	T("fix"), T("replace"), T("implement*"), T("introduce"), T("require*"), T("request*"),
	T("standardi*"), T("automat*"),
)
