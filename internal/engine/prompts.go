package engine

import "fmt"

// analysisPrompt builds the generation prompt for one bulletin date. The
// attached PDF is the first section of the official bulletin for that date.
func analysisPrompt(date string) string {
	return fmt.Sprintf(`Analyze the most important points of the attached content of the First Section of the Official Bulletin of the Argentine Republic - Section 1 - Legislation and Official Notices for the edition dated %s.

ANALYSIS INSTRUCTIONS:
- Use the attached source to produce an executive summary of the relevant normative changes such as privatizations, pension matters and significant deregulations for the given date.
- Produce a detailed list of the main changes: decrees, resolutions, dispositions, official notices, collective labor agreements and any identified changes to laws.
- Estimate the impact of the changes.
- Identify the areas of law affected.

RESPONSE FORMAT (valid JSON):
{
"summary": "Executive summary of the normative changes found for %s",
"changes": [
{
"kind": "decreto|resolucion|ley|disposicion",
"number": "number of the legal instrument",
"label": "Exact full title associated with the legal instrument",
"title": "title or main topic",
"description": "detailed description of the change",
"impact": "high|medium|low",
"impact_justification": "explanation of the impact level"
}
],
"estimated_impact": "Overall analysis of the impact of all changes",
"affected_areas": ["tributario", "laboral", "comercial", "civil", "penal", "administrativo", "other"]
}

IMPORTANT:
Respond ONLY with the valid JSON, no additional text.
Make sure all affected areas are lowercase.
Respond in Spanish.`, date, date)
}

// opinionsPrompt builds the search-grounded prompt used to find expert
// opinions about the bulletin of the given date. At most the first five
// changes are included as context.
func opinionsPrompt(date, summary, changesText string) string {
	return fmt.Sprintf(`Search for analysis of the contents of the Official Bulletin of the Argentine Republic for the date %s in the main Argentine news portals.

BULLETIN CONTEXT:
Summary: %s

Main changes identified:
%s

SEARCH INSTRUCTIONS:
1. Search Argentine portals such as La Nacion (lanacion.com.ar), Clarin (clarin.com), Pagina/12 (pagina12.com.ar), Ambito Financiero (ambito.com), El Cronista (cronista.com), Infobae (infobae.com), BAE Negocios (baenegocios.com), specialized legal portals and economic analysis sites, for the date %s.
2. Exclude the sites https://www.boletinoficial.gob.ar/ and https://boa.com.ar/, and exclude publications dated more than 2 days before %s.
3. Look specifically for analysis, opinions or commentary about the normative changes of %s, the impact of the new regulations, opinions from legal or economic experts, and analysis from consultancies or law firms.
4. Produce a list summarizing the main opinions, referencing the outlet where each was found.

RESPONSE FORMAT (valid JSON):
[
{
"outlet": "Name of the outlet or portal",
"url": "URL of the article or analysis (if available)",
"author": "Name of the author or expert (if available)",
"title": "Title of the article or analysis",
"summary": "Summary of the opinion or analysis found",
"published_at": "Publication date (if available)",
"relevance": "high|medium|low"
}
]

IMPORTANT:
- Respond ONLY with the valid JSON, no additional text.
- Include at most 10 opinions.
- Prioritize reliable, recognized sources.
- If no information is found, return an empty array [].`, date, summary, changesText, date, date, date)
}
